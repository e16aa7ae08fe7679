package repository

import (
	"context"
	"errors"
	"time"

	"sales_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const insertActivityQuery = `
	INSERT INTO lead_activities (id, lead_id, action, description, created_at)
	VALUES ($1, $2, $3, $4, $5)`

func (r *Repository) AddActivity(ctx context.Context, leadID uuid.UUID, action, description string) error {
	_, err := r.pool.Exec(ctx, insertActivityQuery, uuid.New(), leadID, action, description, time.Now())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, action, description, created_at
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Action, &a.Description, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
