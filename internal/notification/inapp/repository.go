package inapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales_crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opCreate         = "notification.inapp.repository.create"
	opCreateFollowUp = "notification.inapp.repository.create_follow_up"
	opGet            = "notification.inapp.repository.get"
	opList           = "notification.inapp.repository.list"
	opMarkRead       = "notification.inapp.repository.mark_read"
	opMarkAllRead    = "notification.inapp.repository.mark_all_read"
	opDelete         = "notification.inapp.repository.delete"
	opSetFollowUp    = "notification.inapp.repository.set_lead_follow_up"
	opLeadName       = "notification.inapp.repository.lead_name"

	errRepoNotConfigured = "in-app notification repository not configured"
	errUserIDRequired    = "userId is required"
)

// Notification types.
const (
	TypeFollowUp = "follow-up"
	TypeEmail    = "email"
	TypeCall     = "call"
	TypeMeeting  = "meeting"
	TypeGeneral  = "general"
)

// ValidType reports whether t is a known notification type.
func ValidType(t string) bool {
	switch t {
	case TypeFollowUp, TypeEmail, TypeCall, TypeMeeting, TypeGeneral:
		return true
	}
	return false
}

type Notification struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      *uuid.UUID `json:"leadId,omitempty"`
	UserID      uuid.UUID  `json:"userId"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	IsRead      bool       `json:"isRead"`
	CreatedAt   time.Time  `json:"createdAt"`
	LeadName    *string    `json:"leadName,omitempty"`
}

type CreateParams struct {
	LeadID      *uuid.UUID
	UserID      uuid.UUID
	Title       string
	Message     string
	Type        string
	ScheduledAt *time.Time
}

func (p CreateParams) validate(op string) error {
	if p.UserID == uuid.Nil {
		return apperr.Validation(errUserIDRequired).WithOp(op)
	}
	if p.Title == "" || p.Message == "" {
		return apperr.Validation("title and message are required").WithOp(op)
	}
	if !ValidType(p.Type) {
		return apperr.Validation(fmt.Sprintf("unknown notification type %q", p.Type)).WithOp(op)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertNotificationQuery = `
	INSERT INTO notifications (lead_id, user_id, title, message, type, scheduled_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, lead_id, user_id, title, message, type, scheduled_at, is_read, created_at`

const setLeadFollowUpQuery = `
	UPDATE leads SET next_follow_up = $2, updated_at = now()
	WHERE id = $1`

const selectNotificationQuery = `
	SELECT n.id, n.lead_id, n.user_id, n.title, n.message, n.type, n.scheduled_at, n.is_read, n.created_at,
		CASE WHEN l.id IS NULL THEN NULL ELSE l.first_name || ' ' || l.last_name END
	FROM notifications n
	LEFT JOIN leads l ON l.id = n.lead_id`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func insertNotification(ctx context.Context, q querier, p CreateParams) (Notification, error) {
	var n Notification
	err := q.QueryRow(ctx, insertNotificationQuery,
		p.LeadID, p.UserID, p.Title, p.Message, p.Type, p.ScheduledAt,
	).Scan(&n.ID, &n.LeadID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.ScheduledAt, &n.IsRead, &n.CreatedAt)
	return n, err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if err := p.validate(opCreate); err != nil {
		return Notification{}, err
	}

	n, err := insertNotification(ctx, r.pool, p)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Notification{}, apperr.NotFound("lead not found").WithOp(opCreate)
		}
		return Notification{}, apperr.Wrap(apperr.KindUnavailable, "create notification failed", err).WithOp(opCreate)
	}
	return n, nil
}

// CreateFollowUp inserts a follow-up notification and sets the lead's
// next_follow_up in one transaction.
func (r *Repository) CreateFollowUp(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreateFollowUp)
	}
	if err := p.validate(opCreateFollowUp); err != nil {
		return Notification{}, err
	}
	if p.LeadID == nil || p.ScheduledAt == nil {
		return Notification{}, apperr.Validation("leadId and scheduledAt are required").WithOp(opCreateFollowUp)
	}

	var n Notification
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		n, err = insertNotification(ctx, tx, p)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, setLeadFollowUpQuery, *p.LeadID, *p.ScheduledAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if isForeignKeyViolation(err) || errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, apperr.NotFound("lead not found").WithOp(opCreateFollowUp)
		}
		return Notification{}, apperr.Wrap(apperr.KindUnavailable, "schedule follow-up failed", err).WithOp(opCreateFollowUp)
	}
	return n, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opGet)
	}

	var n Notification
	err := r.pool.QueryRow(ctx, selectNotificationQuery+` WHERE n.id = $1`, id).Scan(
		&n.ID, &n.LeadID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.ScheduledAt, &n.IsRead, &n.CreatedAt, &n.LeadName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, apperr.NotFound("notification not found").WithOp(opGet)
		}
		return Notification{}, apperr.Wrap(apperr.KindUnavailable, "get notification failed", err).WithOp(opGet)
	}
	return n, nil
}

// ListForUser returns every notification of a user, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if userID == uuid.Nil {
		return nil, apperr.Validation(errUserIDRequired).WithOp(opList)
	}

	rows, err := r.pool.Query(ctx, selectNotificationQuery+`
		WHERE n.user_id = $1
		ORDER BY n.created_at DESC, n.id`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "list notifications failed", err).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if scanErr := rows.Scan(&n.ID, &n.LeadID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.ScheduledAt, &n.IsRead, &n.CreatedAt, &n.LeadName); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan notifications failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, n)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "iterate notifications failed", rowsErr).WithOp(opList)
	}

	return items, nil
}

// MarkRead sets is_read on one notification. Marking an already read
// notification again succeeds and keeps its original read_at.
func (r *Repository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opMarkRead)
	}
	if userID == uuid.Nil || notificationID == uuid.Nil {
		return apperr.Validation("userId and notificationId are required").WithOp(opMarkRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "mark notification read failed", err).WithOp(opMarkRead)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

// MarkAllRead returns the number of notifications that changed.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opMarkAllRead)
	}
	if userID == uuid.Nil {
		return 0, apperr.Validation(errUserIDRequired).WithOp(opMarkAllRead)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = now()
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnavailable, "mark all notifications read failed", err).WithOp(opMarkAllRead)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opDelete)
	}
	if userID == uuid.Nil || notificationID == uuid.Nil {
		return apperr.Validation("userId and notificationId are required").WithOp(opDelete)
	}

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "delete notification failed", err).WithOp(opDelete)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found").WithOp(opDelete)
	}
	return nil
}

func (r *Repository) SetLeadNextFollowUp(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opSetFollowUp)
	}

	tag, err := r.pool.Exec(ctx, setLeadFollowUpQuery, leadID, at)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "update lead follow-up failed", err).WithOp(opSetFollowUp)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found").WithOp(opSetFollowUp)
	}
	return nil
}

// LeadDisplayName returns "first last" for a lead.
func (r *Repository) LeadDisplayName(ctx context.Context, leadID uuid.UUID) (string, error) {
	if r == nil || r.pool == nil {
		return "", apperr.Internal(errRepoNotConfigured).WithOp(opLeadName)
	}

	var name string
	err := r.pool.QueryRow(ctx, `SELECT first_name || ' ' || last_name FROM leads WHERE id = $1`, leadID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("lead not found").WithOp(opLeadName)
		}
		return "", apperr.Wrap(apperr.KindUnavailable, "load lead name failed", err).WithOp(opLeadName)
	}
	return name, nil
}
