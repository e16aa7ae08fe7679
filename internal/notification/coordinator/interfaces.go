package coordinator

import (
	"context"
	"time"

	"sales_crm_backend/internal/notification/inapp"

	"github.com/google/uuid"
)

// Store persists notifications.
type Store interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]inapp.Notification, error)
	Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	SetLeadNextFollowUp(ctx context.Context, leadID uuid.UUID, at time.Time) error
}

// FollowUpTransactor is implemented by stores that can create a follow-up
// notification and update the lead atomically.
type FollowUpTransactor interface {
	CreateFollowUp(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error)
}

// Sink receives everything the coordinator surfaces to the user.
// Calls are made without holding the coordinator lock and must not block.
type Sink interface {
	StateChanged(userID uuid.UUID, state State)
	FollowUpDue(userID uuid.UUID, alert Alert)
	FetchFailed(userID uuid.UUID, err error)
}

// Alert announces a follow-up that is due within the alert window.
type Alert struct {
	NotificationID uuid.UUID  `json:"notificationId"`
	LeadID         *uuid.UUID `json:"leadId,omitempty"`
	Title          string     `json:"title"`
	Message        string     `json:"message,omitempty"`
	ScheduledAt    time.Time  `json:"scheduledAt"`
}

type noopSink struct{}

func (noopSink) StateChanged(uuid.UUID, State) {}
func (noopSink) FollowUpDue(uuid.UUID, Alert)  {}
func (noopSink) FetchFailed(uuid.UUID, error)  {}
