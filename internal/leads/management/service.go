// Package management handles lead CRUD. Every create and update rescores the
// lead and stores the priority derived from that score.
package management

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales_crm_backend/internal/events"
	"sales_crm_backend/internal/leads/domain"
	"sales_crm_backend/internal/leads/repository"
	"sales_crm_backend/internal/leads/scoring"
	"sales_crm_backend/internal/leads/transport"
	"sales_crm_backend/platform/apperr"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/metrics"
	"sales_crm_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	opCreate      = "leads.management.create"
	opImport      = "leads.management.import"
	opGet         = "leads.management.get"
	opList        = "leads.management.list"
	opUpdate      = "leads.management.update"
	opSetPriority = "leads.management.set_priority"
	opDelete      = "leads.management.delete"
	opStats       = "leads.management.stats"
	opActivities  = "leads.management.activities"

	defaultPageSize = 25
)

// Repository is the data access management needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	repository.ActivityLogger
	repository.MetricsReader
}

type Service struct {
	repo        Repository
	bus         events.Bus
	log         *logger.Logger
	phoneRegion string
	now         func() time.Time
}

// New creates the lead management service. phoneRegion is the default
// region used to read national phone numbers.
func New(repo Repository, bus events.Bus, log *logger.Logger, phoneRegion string) *Service {
	return &Service{repo: repo, bus: bus, log: log, phoneRegion: phoneRegion, now: time.Now}
}

func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	now := s.now()
	lead := s.leadFromRequest(req, now)
	result := s.rescore(&lead, now)

	created, err := s.repo.Create(ctx, lead)
	if err != nil {
		return transport.LeadResponse{}, internal(opCreate, "create lead failed", err)
	}

	s.logActivity(ctx, created.ID, domain.ActivityCreated, fmt.Sprintf("Lead created with score %d", result.Score))
	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    created.ID,
		Score:     result.Score,
		Priority:  string(created.Priority),
		Source:    string(created.Source),
	})

	return toLeadResponse(created, result), nil
}

// Import stores all leads in one transaction; either all are created or none.
func (s *Service) Import(ctx context.Context, req transport.ImportLeadsRequest) (transport.ImportLeadsResponse, error) {
	now := s.now()
	leads := make([]domain.Lead, 0, len(req.Leads))
	scores := make([]int, 0, len(req.Leads))
	for _, item := range req.Leads {
		lead := s.leadFromRequest(item, now)
		scores = append(scores, s.rescore(&lead, now).Score)
		leads = append(leads, lead)
	}

	if err := s.repo.CreateBatch(ctx, leads); err != nil {
		return transport.ImportLeadsResponse{}, internal(opImport, "import leads failed", err)
	}

	for i, lead := range leads {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Score:     scores[i],
			Priority:  string(lead.Priority),
			Source:    string(lead.Source),
		})
	}

	return transport.ImportLeadsResponse{Imported: len(leads)}, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.load(ctx, opGet, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return ToLeadResponse(lead, s.now()), nil
}

func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	params := repository.ListParams{Limit: pageSize, Offset: (page - 1) * pageSize}
	if req.Status != "" {
		status := domain.Status(req.Status)
		params.Status = &status
	}
	if req.Priority != "" {
		priority := domain.Priority(req.Priority)
		params.Priority = &priority
	}

	leads, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, internal(opList, "list leads failed", err)
	}

	now := s.now()
	items := make([]transport.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		items = append(items, ToLeadResponse(lead, now))
	}

	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Update merges req into the stored lead, then recomputes score and priority
// from the merged record.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateLeadRequest) (transport.LeadResponse, error) {
	current, err := s.load(ctx, opUpdate, id)
	if err != nil {
		return transport.LeadResponse{}, err
	}

	now := s.now()
	merged := s.merge(current, req)
	merged.UpdatedAt = now
	result := s.rescore(&merged, now)

	updated, err := s.repo.Update(ctx, merged)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found").WithOp(opUpdate)
		}
		return transport.LeadResponse{}, internal(opUpdate, "update lead failed", err)
	}

	s.logActivity(ctx, id, domain.ActivityUpdated, fmt.Sprintf("Lead updated, score %d", result.Score))
	if current.Status != updated.Status {
		s.logActivity(ctx, id, domain.ActivityStatusChanged,
			fmt.Sprintf("Status changed from %s to %s", current.Status, updated.Status))
	}

	s.bus.Publish(ctx, events.LeadUpdated{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         id,
		Score:          result.Score,
		Priority:       string(updated.Priority),
		PreviousStatus: string(current.Status),
		Status:         string(updated.Status),
	})

	return toLeadResponse(updated, result), nil
}

// SetPriority stores a manual priority. It holds until the next update
// recomputes the priority from the score.
func (s *Service) SetPriority(ctx context.Context, id uuid.UUID, req transport.UpdatePriorityRequest) (transport.LeadResponse, error) {
	lead, err := s.repo.UpdatePriority(ctx, id, req.Priority)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found").WithOp(opSetPriority)
		}
		return transport.LeadResponse{}, internal(opSetPriority, "set priority failed", err)
	}

	s.logActivity(ctx, id, domain.ActivityPriorityOverride, fmt.Sprintf("Priority manually set to %s", req.Priority))
	return ToLeadResponse(lead, s.now()), nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("lead not found").WithOp(opDelete)
		}
		return internal(opDelete, "delete lead failed", err)
	}

	s.bus.Publish(ctx, events.LeadDeleted{BaseEvent: events.NewBaseEvent(), LeadID: id})
	return nil
}

// Stats returns pipeline counts and the closed/total conversion rate.
func (s *Service) Stats(ctx context.Context) (transport.LeadStatsResponse, error) {
	m, err := s.repo.GetMetrics(ctx)
	if err != nil {
		return transport.LeadStatsResponse{}, internal(opStats, "load lead stats failed", err)
	}
	return ToStatsResponse(m), nil
}

// Score returns the factor breakdown of a stored lead.
func (s *Service) Score(ctx context.Context, id uuid.UUID) (scoring.Result, error) {
	lead, err := s.load(ctx, opGet, id)
	if err != nil {
		return scoring.Result{}, err
	}
	return scoring.Evaluate(lead, s.now()), nil
}

func (s *Service) ListActivities(ctx context.Context, id uuid.UUID) ([]transport.ActivityResponse, error) {
	if _, err := s.load(ctx, opActivities, id); err != nil {
		return nil, err
	}

	items, err := s.repo.ListActivities(ctx, id, 100)
	if err != nil {
		return nil, internal(opActivities, "list activities failed", err)
	}

	out := make([]transport.ActivityResponse, 0, len(items))
	for _, a := range items {
		out = append(out, transport.ActivityResponse{
			ID:          a.ID,
			LeadID:      a.LeadID,
			Action:      a.Action,
			Description: a.Description,
			CreatedAt:   a.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, op string, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound("lead not found").WithOp(op)
		}
		return domain.Lead{}, internal(op, "load lead failed", err)
	}
	return lead, nil
}

// rescore sets lead.Priority from the score of the lead as submitted, then
// returns the score of the lead as it will be stored. The priority feeds the
// score, so the two can differ; reads always report the stored lead's score.
func (s *Service) rescore(lead *domain.Lead, now time.Time) scoring.Result {
	lead.Priority = scoring.Evaluate(*lead, now).Priority
	result := scoring.Evaluate(*lead, now)
	metrics.LeadScores.Observe(float64(result.Score))
	return result
}

func (s *Service) leadFromRequest(req transport.CreateLeadRequest, now time.Time) domain.Lead {
	lead := domain.Lead{
		ID:              uuid.New(),
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           s.normalizePhone(req.Phone),
		Company:         req.Company,
		Position:        req.Position,
		Priority:        req.Priority,
		Status:          req.Status,
		Source:          req.Source,
		Value:           req.Value,
		Industry:        req.Industry,
		CompanySize:     req.CompanySize,
		Revenue:         req.Revenue,
		Notes:           req.Notes,
		LastContactedAt: req.LastContactedAt,
		NextFollowUp:    req.NextFollowUp,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if lead.Status == "" {
		lead.Status = domain.StatusNew
	}
	return lead
}

func (s *Service) merge(lead domain.Lead, req transport.UpdateLeadRequest) domain.Lead {
	if req.FirstName != nil {
		lead.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		lead.LastName = *req.LastName
	}
	if req.Email != nil {
		lead.Email = *req.Email
	}
	if req.Company != nil {
		lead.Company = *req.Company
	}
	if req.Priority != nil {
		lead.Priority = *req.Priority
	}
	if req.Status != nil {
		lead.Status = *req.Status
	}
	if req.Source != nil {
		lead.Source = *req.Source
	}
	if req.Phone.Set {
		lead.Phone = s.normalizePhone(req.Phone.Value)
	}
	req.Position.Apply(&lead.Position)
	req.Value.Apply(&lead.Value)
	req.Industry.Apply(&lead.Industry)
	req.CompanySize.Apply(&lead.CompanySize)
	req.Revenue.Apply(&lead.Revenue)
	req.Notes.Apply(&lead.Notes)
	req.LastContactedAt.Apply(&lead.LastContactedAt)
	req.NextFollowUp.Apply(&lead.NextFollowUp)
	return lead
}

func (s *Service) normalizePhone(raw *string) *string {
	if raw == nil {
		return nil
	}
	normalized := phone.NormalizeE164(*raw, s.phoneRegion)
	if normalized == "" {
		return nil
	}
	return &normalized
}

// logActivity records an activity entry. Failures are logged and do not
// fail the surrounding operation.
func (s *Service) logActivity(ctx context.Context, leadID uuid.UUID, action, description string) {
	if err := s.repo.AddActivity(ctx, leadID, action, description); err != nil {
		s.log.WithContext(ctx).Warn("failed to record lead activity", "leadId", leadID, "action", action, "error", err)
	}
}

func internal(op, message string, err error) error {
	return apperr.Wrap(apperr.KindInternal, message, err).WithOp(op)
}
