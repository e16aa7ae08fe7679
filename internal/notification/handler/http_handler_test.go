package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sales_crm_backend/internal/events"
	"sales_crm_backend/internal/notification/coordinator"
	"sales_crm_backend/internal/notification/inapp"
	"sales_crm_backend/internal/notification/sse"
	"sales_crm_backend/platform/apperr"
	"sales_crm_backend/platform/httpkit"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu       sync.Mutex
	items    []inapp.Notification
	leadErr  error
	readErr  error
	leadSets int
}

func (s *stubStore) ListForUser(_ context.Context, userID uuid.UUID) ([]inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inapp.Notification
	for _, n := range s.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubStore) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := inapp.Notification{
		ID:          uuid.New(),
		LeadID:      p.LeadID,
		UserID:      p.UserID,
		Title:       p.Title,
		Message:     p.Message,
		Type:        p.Type,
		ScheduledAt: p.ScheduledAt,
		CreatedAt:   time.Now(),
	}
	s.items = append([]inapp.Notification{n}, s.items...)
	return n, nil
}

func (s *stubStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return s.readErr }
func (s *stubStore) MarkAllRead(context.Context, uuid.UUID) error         { return nil }
func (s *stubStore) Delete(context.Context, uuid.UUID, uuid.UUID) error   { return nil }

func (s *stubStore) SetLeadNextFollowUp(context.Context, uuid.UUID, time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadSets++
	return s.leadErr
}

type stubLeads struct{ name string }

func (l stubLeads) LeadDisplayName(context.Context, uuid.UUID) (string, error) {
	if l.name == "" {
		return "", apperr.NotFound("lead not found")
	}
	return l.name, nil
}

type capturingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *capturingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *capturingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *capturingBus) Subscribe(string, events.Handler) {}

type testEnv struct {
	router *gin.Engine
	store  *stubStore
	bus    *capturingBus
	userID uuid.UUID
}

func newTestEnv(t *testing.T, leads stubLeads) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &stubStore{}
	registry := coordinator.NewRegistry(func() *coordinator.Coordinator {
		return coordinator.New(store, nil)
	}, 0, logger.Discard())
	t.Cleanup(registry.Close)

	bus := &capturingBus{}
	h := NewHTTPHandler(registry, sse.New(logger.Discard()), leads, bus, validator.New())

	userID := uuid.New()
	r := gin.New()
	group := r.Group("/notifications")
	group.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-Anonymous") == "" {
			c.Set(httpkit.ContextUserIDKey, userID)
			c.Set(httpkit.ContextEmailKey, "rep@example.com")
		}
		c.Next()
	})
	h.RegisterRoutes(group)

	return &testEnv{router: r, store: store, bus: bus, userID: userID}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestListReturnsSnapshotWithUnreadCount(t *testing.T) {
	env := newTestEnv(t, stubLeads{name: "Ada Lovelace"})
	now := time.Now()
	env.store.items = []inapp.Notification{
		{ID: uuid.New(), UserID: env.userID, Title: "unread", Type: inapp.TypeGeneral, CreatedAt: now},
		{ID: uuid.New(), UserID: env.userID, Title: "read", Type: inapp.TypeGeneral, IsRead: true, CreatedAt: now.Add(-time.Hour)},
		{ID: uuid.New(), UserID: uuid.New(), Title: "someone else", Type: inapp.TypeGeneral, CreatedAt: now},
	}

	rec := env.do(t, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, 1, resp.UnreadCount)
	assert.False(t, resp.Error)
}

func TestRequestsWithoutIdentityAreRejected(t *testing.T) {
	env := newTestEnv(t, stubLeads{})
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("X-Test-Anonymous", "1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkReadRejectsMalformedID(t *testing.T) {
	env := newTestEnv(t, stubLeads{})
	rec := env.do(t, http.MethodPatch, "/notifications/not-a-uuid/read", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadSurfacesStoreFailure(t *testing.T) {
	env := newTestEnv(t, stubLeads{})
	id := uuid.New()
	env.store.items = []inapp.Notification{{ID: id, UserID: env.userID, Type: inapp.TypeGeneral, CreatedAt: time.Now()}}
	env.store.readErr = apperr.Wrap(apperr.KindUnavailable, "store down", errors.New("connection refused"))

	rec := env.do(t, http.MethodPatch, "/notifications/"+id.String()+"/read", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScheduleFollowUpCreatesNotificationAndPublishesEvent(t *testing.T) {
	env := newTestEnv(t, stubLeads{name: "Ada Lovelace"})
	leadID := uuid.New()
	at := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)

	rec := env.do(t, http.MethodPost, "/notifications/follow-ups", gin.H{
		"leadId":      leadID,
		"scheduledAt": at,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var n inapp.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, "Follow-up with Ada Lovelace", n.Title)
	assert.Equal(t, defaultFollowUpMessage, n.Message)
	assert.Equal(t, inapp.TypeFollowUp, n.Type)
	assert.Equal(t, 1, env.store.leadSets)

	require.Len(t, env.bus.published, 1)
	scheduled, ok := env.bus.published[0].(events.FollowUpScheduled)
	require.True(t, ok)
	assert.Equal(t, n.ID, scheduled.NotificationID)
	assert.Equal(t, env.userID, scheduled.UserID)
	assert.Equal(t, "rep@example.com", scheduled.RecipientEmail)
	assert.True(t, at.Equal(scheduled.ScheduledAt))
}

func TestScheduleFollowUpReportsPartialFailure(t *testing.T) {
	env := newTestEnv(t, stubLeads{name: "Ada Lovelace"})
	env.store.leadErr = apperr.NotFound("lead not found")

	rec := env.do(t, http.MethodPost, "/notifications/follow-ups", gin.H{
		"leadId":      uuid.New(),
		"scheduledAt": time.Now().Add(time.Hour),
		"title":       "Call back",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error   string          `json:"error"`
		Details followUpFailure `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Details.Notification)
	assert.Equal(t, "Call back", body.Details.Notification.Title)
	assert.Empty(t, body.Details.NotificationError)
	assert.Equal(t, "lead not found", body.Details.LeadError)

	// The notification row exists even though the lead update failed.
	assert.Len(t, env.store.items, 1)
	assert.Len(t, env.bus.published, 1)
}

func TestScheduleFollowUpValidatesBody(t *testing.T) {
	env := newTestEnv(t, stubLeads{name: "Ada Lovelace"})

	rec := env.do(t, http.MethodPost, "/notifications/follow-ups", gin.H{"title": "missing lead"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.store.items)
}

func TestScheduleFollowUpUnknownLeadWithoutTitle(t *testing.T) {
	env := newTestEnv(t, stubLeads{})

	rec := env.do(t, http.MethodPost, "/notifications/follow-ups", gin.H{
		"leadId":      uuid.New(),
		"scheduledAt": time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, env.store.items)
}
