// Package domain holds the lead entity and its enumerations.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusQualified   Status = "qualified"
	StatusProposal    Status = "proposal"
	StatusNegotiation Status = "negotiation"
	StatusClosed      Status = "closed"
	StatusLost        Status = "lost"
)

// Statuses lists every pipeline status in funnel order.
var Statuses = []Status{
	StatusNew, StatusContacted, StatusQualified, StatusProposal,
	StatusNegotiation, StatusClosed, StatusLost,
}

// Priorities lists every priority from highest to lowest.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

type Source string

const (
	SourceWebsite     Source = "website"
	SourceReferral    Source = "referral"
	SourceEmail       Source = "email"
	SourceSocial      Source = "social"
	SourceEvent       Source = "event"
	SourceOther       Source = "other"
	SourceWebScraping Source = "web-scraping"
)

// Lead is a sales prospect.
type Lead struct {
	ID              uuid.UUID
	FirstName       string
	LastName        string
	Email           string
	Phone           *string
	Company         string
	Position        *string
	Priority        Priority
	Status          Status
	Source          Source
	Value           *float64
	Industry        *string
	CompanySize     *string
	Revenue         *float64
	Notes           *string
	LastContactedAt *time.Time
	NextFollowUp    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DisplayName is "first last", as shown next to notifications.
func (l Lead) DisplayName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Activity is an entry in a lead's activity log.
type Activity struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	Action      string
	Description string
	CreatedAt   time.Time
}

const (
	ActivityCreated          = "created"
	ActivityUpdated          = "updated"
	ActivityStatusChanged    = "status_changed"
	ActivityPriorityOverride = "priority_override"
	ActivityImported         = "imported"
)
