// Package events defines the domain events exchanged between CRM modules.
// Infrastructure (Bus, Handler) lives in platform/events.
package events

import (
	"time"

	"sales_crm_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published after a lead is stored, including bulk imports.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	Score    int       `json:"score"`
	Priority string    `json:"priority"`
	Source   string    `json:"source"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadUpdated is published after a lead edit and its score recompute.
type LeadUpdated struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	Score          int       `json:"score"`
	Priority       string    `json:"priority"`
	PreviousStatus string    `json:"previousStatus"`
	Status         string    `json:"status"`
}

func (e LeadUpdated) EventName() string { return "leads.lead.updated" }

// LeadDeleted is published after a lead and its dependents are removed.
type LeadDeleted struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadDeleted) EventName() string { return "leads.lead.deleted" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// FollowUpScheduled is published once a follow-up notification is persisted.
type FollowUpScheduled struct {
	BaseEvent
	NotificationID uuid.UUID `json:"notificationId"`
	LeadID         uuid.UUID `json:"leadId"`
	UserID         uuid.UUID `json:"userId"`
	RecipientEmail string    `json:"recipientEmail,omitempty"`
	ScheduledAt    time.Time `json:"scheduledAt"`
}

func (e FollowUpScheduled) EventName() string { return "notification.followup.scheduled" }

// FollowUpReminderSent is published by the scheduler after a due reminder is delivered.
type FollowUpReminderSent struct {
	BaseEvent
	NotificationID uuid.UUID `json:"notificationId"`
	UserID         uuid.UUID `json:"userId"`
	Channel        string    `json:"channel"`
}

func (e FollowUpReminderSent) EventName() string { return "notification.followup.reminder_sent" }
