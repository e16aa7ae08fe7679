package changefeed

import (
	"context"
	"testing"
	"time"

	"sales_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPostgresFeed returns a feed that never connects; subscriptions are
// registered directly so dispatch and dropAll run without a database.
func newTestPostgresFeed() *PostgresFeed {
	return NewPostgresFeed("postgres://unused", logger.Discard())
}

func register(f *PostgresFeed, userID uuid.UUID) *subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sub *subscription
	sub = newSubscription(userID, func() { f.remove(sub) })
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[*subscription]struct{})
	}
	f.subs[userID][sub] = struct{}{}
	return sub
}

func drain(sub *subscription) int {
	n := 0
	for {
		select {
		case _, ok := <-sub.Changes():
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func TestPostgresFeedDispatchesOnlyToOwner(t *testing.T) {
	f := newTestPostgresFeed()
	owner := uuid.New()
	other := uuid.New()

	first := register(f, owner)
	second := register(f, owner)
	stranger := register(f, other)

	record := &Record{ID: uuid.New(), UserID: owner, Title: "Call back", Type: "follow-up"}
	f.dispatch(Change{Op: OpInsert, UserID: owner, Record: record})

	for _, sub := range []*subscription{first, second} {
		select {
		case c := <-sub.Changes():
			assert.Equal(t, OpInsert, c.Op)
			require.NotNil(t, c.Record)
			assert.Equal(t, record.ID, c.Record.ID)
		case <-time.After(time.Second):
			t.Fatal("owner subscription received nothing")
		}
	}
	assert.Zero(t, drain(stranger))
}

func TestPostgresFeedDropsWhenBufferFull(t *testing.T) {
	f := newTestPostgresFeed()
	userID := uuid.New()
	sub := register(f, userID)

	for i := 0; i < subscriberBuffer+10; i++ {
		f.dispatch(Change{Op: OpUpdate, UserID: userID})
	}

	assert.Equal(t, subscriberBuffer, drain(sub))

	f.dispatch(Change{Op: OpDelete, UserID: userID})
	select {
	case c := <-sub.Changes():
		assert.Equal(t, OpDelete, c.Op)
	default:
		t.Fatal("expected delivery once the buffer drained")
	}
}

func TestPostgresFeedDropAllClosesSubscriptions(t *testing.T) {
	f := newTestPostgresFeed()
	a := register(f, uuid.New())
	b := register(f, uuid.New())

	f.dropAll()

	for _, sub := range []*subscription{a, b} {
		select {
		case _, ok := <-sub.Changes():
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("subscription was not closed")
		}
	}

	f.mu.Lock()
	assert.Empty(t, f.subs)
	assert.False(t, f.running)
	f.mu.Unlock()

	// Closing after the drop is harmless.
	require.NoError(t, a.Close())
}

func TestPostgresFeedSubscriptionCloseUnregisters(t *testing.T) {
	f := newTestPostgresFeed()
	userID := uuid.New()
	sub := register(f, userID)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	f.mu.Lock()
	_, ok := f.subs[userID]
	f.mu.Unlock()
	assert.False(t, ok)

	// Dispatch to a user with no subscribers is a no-op.
	f.dispatch(Change{Op: OpInsert, UserID: userID})
}

func TestPostgresFeedSubscribeAfterClose(t *testing.T) {
	f := newTestPostgresFeed()
	sub := register(f, uuid.New())

	f.Close()

	_, ok := <-sub.Changes()
	assert.False(t, ok)

	_, err := f.Subscribe(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrFeedClosed)
}

func TestDecodeTriggerPayload(t *testing.T) {
	userID := uuid.New()
	id := uuid.New()
	payload := `{"op":"insert","userId":"` + userID.String() + `","record":{` +
		`"id":"` + id.String() + `","leadId":null,"userId":"` + userID.String() + `",` +
		`"title":"Follow up","message":"Send the revised quote","type":"follow-up",` +
		`"scheduledAt":"2024-06-01T12:05:00+00:00","isRead":false,"createdAt":"2024-06-01T12:00:00+00:00"}}`

	c, err := Decode([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, c.Record)
	assert.Equal(t, id, c.Record.ID)
	assert.Nil(t, c.Record.LeadID)
	assert.Equal(t, "Send the revised quote", c.Record.Message)
	require.NotNil(t, c.Record.ScheduledAt)
	assert.True(t, c.Record.ScheduledAt.Equal(time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)))
}
