package management

import (
	"context"

	"sales_crm_backend/internal/leads/repository"
	"sales_crm_backend/internal/leads/scoring"
)

const opRescore = "leads.management.rescore"

// RescoreResult summarizes a RescoreAll run.
type RescoreResult struct {
	Scanned int
	Changed int
}

// RescoreAll walks every lead in pages of batchSize and stores the priority
// derived from its current score wherever it differs. With dryRun set it
// only counts the leads that would change.
func (s *Service) RescoreAll(ctx context.Context, batchSize int, dryRun bool) (RescoreResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var result RescoreResult
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		leads, _, err := s.repo.List(ctx, repository.ListParams{Limit: batchSize, Offset: offset})
		if err != nil {
			return result, internal(opRescore, "list leads failed", err)
		}
		if len(leads) == 0 {
			return result, nil
		}

		now := s.now()
		for _, lead := range leads {
			result.Scanned++
			derived := scoring.PriorityFromScore(scoring.ComputeScoreAt(lead, now))
			if derived == lead.Priority {
				continue
			}
			result.Changed++
			if dryRun {
				continue
			}
			if _, err := s.repo.UpdatePriority(ctx, lead.ID, derived); err != nil {
				return result, internal(opRescore, "update priority failed", err)
			}
			s.log.Info("lead priority rescored", "leadId", lead.ID, "from", lead.Priority, "to", derived)
		}

		if len(leads) < batchSize {
			return result, nil
		}
	}
}
