package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sales_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversInitialAndPublishedEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := New(logger.Discard())
	userID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Stream(c, userID, Event{Type: EventNotifications, Message: "initial"})
	}()

	require.Eventually(t, func() bool { return svc.Connected(userID) }, time.Second, 5*time.Millisecond)
	svc.Publish(userID, Event{Type: EventFollowUpDue, Message: "due soon"})
	svc.Publish(uuid.New(), Event{Type: EventFollowUpDue, Message: "someone else"})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "event:connected"))
	assert.True(t, strings.Contains(body, "event:notifications"))
	assert.True(t, strings.Contains(body, "initial"))
	assert.True(t, strings.Contains(body, "event:follow_up_due"))
	assert.True(t, strings.Contains(body, "due soon"))
	assert.False(t, strings.Contains(body, "someone else"))
	assert.False(t, svc.Connected(userID))
}

func TestStreamRejectsAnonymousUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := New(logger.Discard())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/stream", nil)

	svc.Stream(c, uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCloseEndsStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := New(logger.Discard())
	userID := uuid.New()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/stream", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Stream(c, userID)
	}()
	require.Eventually(t, func() bool { return svc.Connected(userID) }, time.Second, 5*time.Millisecond)

	svc.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after Close")
	}
}
