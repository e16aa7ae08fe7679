package transport

import (
	"time"

	"sales_crm_backend/internal/leads/domain"
	"sales_crm_backend/internal/leads/scoring"

	"github.com/google/uuid"
)

// Request DTOs

type CreateLeadRequest struct {
	FirstName       string          `json:"firstName" validate:"required,min=1,max=100"`
	LastName        string          `json:"lastName" validate:"required,min=1,max=100"`
	Email           string          `json:"email" validate:"required,email"`
	Phone           *string         `json:"phone,omitempty" validate:"omitempty,min=5,max=32"`
	Company         string          `json:"company" validate:"required,min=1,max=200"`
	Position        *string         `json:"position,omitempty" validate:"omitempty,max=120"`
	Priority        domain.Priority `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Status          domain.Status   `json:"status,omitempty" validate:"omitempty,oneof=new contacted qualified proposal negotiation closed lost"`
	Source          domain.Source   `json:"source" validate:"required,oneof=website referral email social event other web-scraping"`
	Value           *float64        `json:"value,omitempty" validate:"omitempty,gte=0"`
	Industry        *string         `json:"industry,omitempty" validate:"omitempty,max=120"`
	CompanySize     *string         `json:"companySize,omitempty" validate:"omitempty,max=60"`
	Revenue         *float64        `json:"revenue,omitempty" validate:"omitempty,gte=0"`
	Notes           *string         `json:"notes,omitempty" validate:"omitempty,max=5000"`
	LastContactedAt *time.Time      `json:"lastContactedAt,omitempty"`
	NextFollowUp    *time.Time      `json:"nextFollowUp,omitempty"`
}

// UpdateLeadRequest is a partial update. Absent fields are kept; optional
// fields sent as null are cleared.
type UpdateLeadRequest struct {
	FirstName       *string             `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName        *string             `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	Email           *string             `json:"email,omitempty" validate:"omitempty,email"`
	Company         *string             `json:"company,omitempty" validate:"omitempty,min=1,max=200"`
	Priority        *domain.Priority    `json:"priority,omitempty" validate:"omitempty,oneof=high medium low"`
	Status          *domain.Status      `json:"status,omitempty" validate:"omitempty,oneof=new contacted qualified proposal negotiation closed lost"`
	Source          *domain.Source      `json:"source,omitempty" validate:"omitempty,oneof=website referral email social event other web-scraping"`
	Phone           Optional[string]    `json:"phone" validate:"-"`
	Position        Optional[string]    `json:"position" validate:"-"`
	Value           Optional[float64]   `json:"value" validate:"-"`
	Industry        Optional[string]    `json:"industry" validate:"-"`
	CompanySize     Optional[string]    `json:"companySize" validate:"-"`
	Revenue         Optional[float64]   `json:"revenue" validate:"-"`
	Notes           Optional[string]    `json:"notes" validate:"-"`
	LastContactedAt Optional[time.Time] `json:"lastContactedAt" validate:"-"`
	NextFollowUp    Optional[time.Time] `json:"nextFollowUp" validate:"-"`
}

type ImportLeadsRequest struct {
	Leads []CreateLeadRequest `json:"leads" validate:"required,min=1,max=500,dive"`
}

type UpdatePriorityRequest struct {
	Priority domain.Priority `json:"priority" validate:"required,oneof=high medium low"`
}

type ListLeadsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=new contacted qualified proposal negotiation closed lost"`
	Priority string `form:"priority" validate:"omitempty,oneof=high medium low"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

// Response DTOs

type LeadResponse struct {
	ID              uuid.UUID              `json:"id"`
	FirstName       string                 `json:"firstName"`
	LastName        string                 `json:"lastName"`
	Email           string                 `json:"email"`
	Phone           *string                `json:"phone,omitempty"`
	Company         string                 `json:"company"`
	Position        *string                `json:"position,omitempty"`
	Priority        domain.Priority        `json:"priority"`
	Status          domain.Status          `json:"status"`
	Source          domain.Source          `json:"source"`
	Value           *float64               `json:"value,omitempty"`
	Industry        *string                `json:"industry,omitempty"`
	CompanySize     *string                `json:"companySize,omitempty"`
	Revenue         *float64               `json:"revenue,omitempty"`
	Notes           *string                `json:"notes,omitempty"`
	LastContactedAt *time.Time             `json:"lastContactedAt,omitempty"`
	NextFollowUp    *time.Time             `json:"nextFollowUp,omitempty"`
	Score           int                    `json:"score"`
	Classification  scoring.Classification `json:"classification"`
	ScoreColor      string                 `json:"scoreColor"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type ImportLeadsResponse struct {
	Imported int `json:"imported"`
}

type ActivityResponse struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"leadId"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LeadStatsResponse struct {
	Total          int     `json:"total"`
	High           int     `json:"high"`
	Medium         int     `json:"medium"`
	Low            int     `json:"low"`
	New            int     `json:"new"`
	Contacted      int     `json:"contacted"`
	Qualified      int     `json:"qualified"`
	Proposal       int     `json:"proposal"`
	Negotiation    int     `json:"negotiation"`
	Closed         int     `json:"closed"`
	Lost           int     `json:"lost"`
	ConversionRate float64 `json:"conversionRate"`
}
