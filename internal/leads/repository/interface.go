package repository

import (
	"context"
	"time"

	"sales_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
}

// LeadWriter provides write operations on leads.
type LeadWriter interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	CreateBatch(ctx context.Context, leads []domain.Lead) error
	Update(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	UpdatePriority(ctx context.Context, id uuid.UUID, priority domain.Priority) (domain.Lead, error)
	SetNextFollowUp(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ActivityLogger records and lists the activity trail of a lead.
type ActivityLogger interface {
	AddActivity(ctx context.Context, leadID uuid.UUID, action, description string) error
	ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error)
}

// MetricsReader provides pipeline aggregates.
type MetricsReader interface {
	GetMetrics(ctx context.Context) (LeadMetrics, error)
}

// LeadsRepository is the full repository surface.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	ActivityLogger
	MetricsReader
}

var _ LeadsRepository = (*Repository)(nil)

// ListParams filters and paginates List. Nil filters match everything.
type ListParams struct {
	Status   *domain.Status
	Priority *domain.Priority
	Limit    int
	Offset   int
}

// LeadMetrics are counts over all stored leads.
type LeadMetrics struct {
	Total      int
	ByPriority map[domain.Priority]int
	ByStatus   map[domain.Status]int
}
