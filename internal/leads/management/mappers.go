package management

import (
	"time"

	"sales_crm_backend/internal/leads/domain"
	"sales_crm_backend/internal/leads/repository"
	"sales_crm_backend/internal/leads/scoring"
	"sales_crm_backend/internal/leads/transport"
)

// ToLeadResponse maps a lead and attaches its score as of now.
func ToLeadResponse(lead domain.Lead, now time.Time) transport.LeadResponse {
	return toLeadResponse(lead, scoring.Evaluate(lead, now))
}

// toLeadResponse maps a lead with a score already computed for it.
func toLeadResponse(lead domain.Lead, score scoring.Result) transport.LeadResponse {
	return transport.LeadResponse{
		ID:              lead.ID,
		FirstName:       lead.FirstName,
		LastName:        lead.LastName,
		Email:           lead.Email,
		Phone:           lead.Phone,
		Company:         lead.Company,
		Position:        lead.Position,
		Priority:        lead.Priority,
		Status:          lead.Status,
		Source:          lead.Source,
		Value:           lead.Value,
		Industry:        lead.Industry,
		CompanySize:     lead.CompanySize,
		Revenue:         lead.Revenue,
		Notes:           lead.Notes,
		LastContactedAt: lead.LastContactedAt,
		NextFollowUp:    lead.NextFollowUp,
		Score:           score.Score,
		Classification:  score.Classification,
		ScoreColor:      score.Color,
		CreatedAt:       lead.CreatedAt,
		UpdatedAt:       lead.UpdatedAt,
	}
}

func ToStatsResponse(m repository.LeadMetrics) transport.LeadStatsResponse {
	resp := transport.LeadStatsResponse{
		Total:       m.Total,
		High:        m.ByPriority[domain.PriorityHigh],
		Medium:      m.ByPriority[domain.PriorityMedium],
		Low:         m.ByPriority[domain.PriorityLow],
		New:         m.ByStatus[domain.StatusNew],
		Contacted:   m.ByStatus[domain.StatusContacted],
		Qualified:   m.ByStatus[domain.StatusQualified],
		Proposal:    m.ByStatus[domain.StatusProposal],
		Negotiation: m.ByStatus[domain.StatusNegotiation],
		Closed:      m.ByStatus[domain.StatusClosed],
		Lost:        m.ByStatus[domain.StatusLost],
	}
	if m.Total > 0 {
		resp.ConversionRate = float64(resp.Closed) / float64(m.Total)
	}
	return resp
}
