package inapp

import (
	"context"
	"time"

	"sales_crm_backend/internal/notification/changefeed"
	"sales_crm_backend/platform/apperr"
	"sales_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// ChangePublisher relays committed writes to live subscribers. It is only
// set when the change feed is not driven by the database trigger.
type ChangePublisher interface {
	Publish(ctx context.Context, c changefeed.Change) error
}

type Service struct {
	repo      *Repository
	publisher ChangePublisher
	log       *logger.Logger
}

func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// SetPublisher injects the change publisher.
func (s *Service) SetPublisher(p ChangePublisher) {
	s.publisher = p
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Notification, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) LeadDisplayName(ctx context.Context, leadID uuid.UUID) (string, error) {
	return s.repo.LeadDisplayName(ctx, leadID)
}

func (s *Service) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, apperr.Internal("in-app notification service not configured")
	}
	if p.Type == "" {
		p.Type = TypeGeneral
	}

	n, err := s.repo.Create(ctx, p)
	if err != nil {
		s.log.Error("failed to persist notification", "error", err, "userId", p.UserID)
		return Notification{}, err
	}
	s.publish(ctx, changefeed.Change{Op: changefeed.OpInsert, UserID: n.UserID, Record: toRecord(n)})
	return n, nil
}

// CreateFollowUp stores a follow-up notification together with the lead's
// next follow-up time.
func (s *Service) CreateFollowUp(ctx context.Context, p CreateParams) (Notification, error) {
	p.Type = TypeFollowUp
	n, err := s.repo.CreateFollowUp(ctx, p)
	if err != nil {
		return Notification{}, err
	}
	s.publish(ctx, changefeed.Change{Op: changefeed.OpInsert, UserID: n.UserID, Record: toRecord(n)})
	return n, nil
}

func (s *Service) SetLeadNextFollowUp(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	return s.repo.SetLeadNextFollowUp(ctx, leadID, at)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	s.publish(ctx, changefeed.Change{
		Op:     changefeed.OpUpdate,
		UserID: userID,
		Record: &changefeed.Record{ID: id, UserID: userID, IsRead: true},
	})
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	changed, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return err
	}
	if changed > 0 {
		s.publish(ctx, changefeed.Change{Op: changefeed.OpUpdate, UserID: userID})
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.publish(ctx, changefeed.Change{
		Op:     changefeed.OpDelete,
		UserID: userID,
		Record: &changefeed.Record{ID: id, UserID: userID},
	})
	return nil
}

// publish failures are logged only; the write has already committed and
// subscribers converge on their next refresh.
func (s *Service) publish(ctx context.Context, c changefeed.Change) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.log.Warn("failed to publish notification change", "error", err, "op", string(c.Op), "userId", c.UserID)
	}
}

func toRecord(n Notification) *changefeed.Record {
	return &changefeed.Record{
		ID:          n.ID,
		LeadID:      n.LeadID,
		UserID:      n.UserID,
		Title:       n.Title,
		Message:     n.Message,
		Type:        n.Type,
		ScheduledAt: n.ScheduledAt,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}
