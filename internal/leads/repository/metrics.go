package repository

import (
	"context"

	"sales_crm_backend/internal/leads/domain"
)

const metricsQuery = `
	SELECT 'priority' AS dimension, priority AS bucket, COUNT(*) FROM leads GROUP BY priority
	UNION ALL
	SELECT 'status', status, COUNT(*) FROM leads GROUP BY status`

// GetMetrics counts leads per priority and per status.
func (r *Repository) GetMetrics(ctx context.Context) (LeadMetrics, error) {
	rows, err := r.pool.Query(ctx, metricsQuery)
	if err != nil {
		return LeadMetrics{}, err
	}
	defer rows.Close()

	metrics := LeadMetrics{
		ByPriority: make(map[domain.Priority]int, len(domain.Priorities)),
		ByStatus:   make(map[domain.Status]int, len(domain.Statuses)),
	}
	for rows.Next() {
		var (
			dimension, bucket string
			count             int
		)
		if err := rows.Scan(&dimension, &bucket, &count); err != nil {
			return LeadMetrics{}, err
		}
		if dimension == "priority" {
			metrics.ByPriority[domain.Priority(bucket)] = count
			metrics.Total += count
		} else {
			metrics.ByStatus[domain.Status(bucket)] = count
		}
	}
	return metrics, rows.Err()
}
