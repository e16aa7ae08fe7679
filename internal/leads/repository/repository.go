package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sales_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, first_name, last_name, email, phone, company, position,
	priority, status, source, value::float8, industry, company_size, revenue::float8, notes,
	last_contacted_at, next_follow_up, created_at, updated_at`

const insertLeadQuery = `
	INSERT INTO leads (
		id, first_name, last_name, email, phone, company, position,
		priority, status, source, value, industry, company_size, revenue, notes,
		last_contacted_at, next_follow_up, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	RETURNING ` + leadColumns

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		lead                     domain.Lead
		priority, status, source string
	)
	err := row.Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &lead.Company, &lead.Position,
		&priority, &status, &source, &lead.Value, &lead.Industry, &lead.CompanySize, &lead.Revenue, &lead.Notes,
		&lead.LastContactedAt, &lead.NextFollowUp, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Priority = domain.Priority(priority)
	lead.Status = domain.Status(status)
	lead.Source = domain.Source(source)
	return lead, nil
}

func insertArgs(lead domain.Lead) []any {
	return []any{
		lead.ID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.Company, lead.Position,
		string(lead.Priority), string(lead.Status), string(lead.Source), lead.Value, lead.Industry,
		lead.CompanySize, lead.Revenue, lead.Notes, lead.LastContactedAt, lead.NextFollowUp,
		lead.CreatedAt, lead.UpdatedAt,
	}
}

func (r *Repository) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	return create(ctx, r.pool, lead)
}

func create(ctx context.Context, q querier, lead domain.Lead) (domain.Lead, error) {
	created, err := scanLead(q.QueryRow(ctx, insertLeadQuery, insertArgs(lead)...))
	if err != nil {
		return domain.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return created, nil
}

// CreateBatch inserts all leads and their import activity in one transaction.
func (r *Repository) CreateBatch(ctx context.Context, leads []domain.Lead) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, lead := range leads {
			batch.Queue(insertLeadQuery, insertArgs(lead)...)
			batch.Queue(insertActivityQuery, uuid.New(), lead.ID, domain.ActivityImported, "Lead imported", lead.CreatedAt)
		}
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("import lead %d: %w", i/2, err)
			}
		}
		return results.Close()
	})
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// List returns one page of leads, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	where, args := listFilter(params)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, params.Offset)
	query := fmt.Sprintf(`SELECT %s FROM leads%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		leadColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Lead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lead)
	}
	return items, total, rows.Err()
}

func listFilter(params ListParams) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if params.Status != nil {
		args = append(args, string(*params.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Priority != nil {
		args = append(args, string(*params.Priority))
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Update overwrites every mutable column of lead.
func (r *Repository) Update(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	updated, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			first_name = $2, last_name = $3, email = $4, phone = $5, company = $6, position = $7,
			priority = $8, status = $9, source = $10, value = $11, industry = $12, company_size = $13,
			revenue = $14, notes = $15, last_contacted_at = $16, next_follow_up = $17, updated_at = $18
		WHERE id = $1
		RETURNING `+leadColumns,
		lead.ID, lead.FirstName, lead.LastName, lead.Email, lead.Phone, lead.Company, lead.Position,
		string(lead.Priority), string(lead.Status), string(lead.Source), lead.Value, lead.Industry,
		lead.CompanySize, lead.Revenue, lead.Notes, lead.LastContactedAt, lead.NextFollowUp, lead.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return updated, err
}

func (r *Repository) UpdatePriority(ctx context.Context, id uuid.UUID, priority domain.Priority) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET priority = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns, id, string(priority)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) SetNextFollowUp(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET next_follow_up = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the lead. Activities and notifications go with it via ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
