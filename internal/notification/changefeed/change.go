// Package changefeed delivers row-level changes of the notifications table
// to per-user subscribers.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Record is the subset of a notification row carried by a change.
// Message may be truncated by the database trigger.
type Record struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	UserID      uuid.UUID  `json:"userId"`
	Title       string     `json:"title"`
	Message     string     `json:"message,omitempty"`
	Type        string     `json:"type"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	IsRead      bool       `json:"isRead"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Change is one insert, update or delete affecting a user's notifications.
// Record is nil for bulk updates.
type Change struct {
	Op     Op        `json:"op"`
	UserID uuid.UUID `json:"userId"`
	Record *Record   `json:"record,omitempty"`
}

// Decode parses a JSON change payload.
func Decode(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	switch c.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Change{}, fmt.Errorf("decode change: unknown op %q", c.Op)
	}
	if c.UserID == uuid.Nil {
		return Change{}, fmt.Errorf("decode change: missing userId")
	}
	return c, nil
}

// Subscription is a live stream of changes for one user. The channel is
// closed when the underlying transport drops or Close is called.
type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// Feed opens subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error)
}

const subscriberBuffer = 64

type subscription struct {
	userID  uuid.UUID
	ch      chan Change
	once    sync.Once
	onClose func()
}

func newSubscription(userID uuid.UUID, onClose func()) *subscription {
	return &subscription{
		userID:  userID,
		ch:      make(chan Change, subscriberBuffer),
		onClose: onClose,
	}
}

func (s *subscription) Changes() <-chan Change { return s.ch }

// deliver never blocks; a slow subscriber loses changes and catches up on
// its next refresh.
func (s *subscription) deliver(c Change) bool {
	select {
	case s.ch <- c:
		return true
	default:
		return false
	}
}

func (s *subscription) shutdown() {
	s.once.Do(func() { close(s.ch) })
}

func (s *subscription) Close() error {
	if s.onClose != nil {
		s.onClose()
	}
	s.shutdown()
	return nil
}

var (
	_ Feed = (*PostgresFeed)(nil)
	_ Feed = (*RedisFeed)(nil)
)
