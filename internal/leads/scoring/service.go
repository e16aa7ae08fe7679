// Package scoring computes the 0-100 quality score of a lead.
//
// Scoring is a pure function of the lead's attributes and the current time:
// a base of 50 plus one bounded contribution per factor, rounded and clamped.
package scoring

import (
	"math"
	"strings"
	"time"

	"sales_crm_backend/internal/leads/domain"
)

const (
	// ScoreVersion identifies the rule table. Bump it when contributions change
	// so stored priorities can be recomputed with cmd/lead-rescore.
	ScoreVersion = "2024-rules-v1"

	baseScore = 50.0
	day       = 24 * time.Hour
)

// Factor names used as keys in Result.Factors.
const (
	FactorPriority    = "priority"
	FactorStatus      = "status"
	FactorValue       = "value"
	FactorIndustry    = "industry"
	FactorCompanySize = "companySize"
	FactorRevenue     = "revenue"
	FactorRecency     = "recency"
)

var (
	highValueIndustries   = []string{"Technology", "Healthcare", "Finance", "Energy", "Telecommunications"}
	mediumValueIndustries = []string{"Manufacturing", "Education", "Retail", "Media", "Real Estate"}

	enterpriseSizes = []string{"1000+", "5000+", "Enterprise"}
	largeSizes      = []string{"501-", "201-", "Large"}
	mediumSizes     = []string{"51-", "Medium"}
)

var statusContributions = map[domain.Status]float64{
	domain.StatusNew:         5,
	domain.StatusContacted:   10,
	domain.StatusQualified:   15,
	domain.StatusProposal:    20,
	domain.StatusNegotiation: 25,
	domain.StatusClosed:      15,
	domain.StatusLost:        -10,
}

// Classification is the temperature label derived from a score.
type Classification string

const (
	Hot  Classification = "Hot"
	Warm Classification = "Warm"
	Cool Classification = "Cool"
	Cold Classification = "Cold"
)

// Result is a score together with its breakdown.
type Result struct {
	Score          int                `json:"score"`
	Classification Classification     `json:"classification"`
	Priority       domain.Priority    `json:"priority"`
	Color          string             `json:"color"`
	Factors        map[string]float64 `json:"factors"`
	Version        string             `json:"version"`
	ComputedAt     time.Time          `json:"computedAt"`
}

// ComputeScore scores lead against the wall clock.
func ComputeScore(lead domain.Lead) int {
	return ComputeScoreAt(lead, time.Now())
}

// ComputeScoreAt scores lead as of now.
func ComputeScoreAt(lead domain.Lead, now time.Time) int {
	return Evaluate(lead, now).Score
}

// Evaluate scores lead as of now and records every factor's contribution.
func Evaluate(lead domain.Lead, now time.Time) Result {
	factors := make(map[string]float64, 7)
	score := baseScore

	add := func(name string, v float64) {
		factors[name] = v
		score += v
	}

	add(FactorPriority, scorePriority(lead.Priority))
	add(FactorStatus, statusContributions[lead.Status])
	add(FactorValue, scoreValue(lead.Value))
	add(FactorIndustry, scoreIndustry(lead.Industry))
	add(FactorCompanySize, scoreCompanySize(lead.CompanySize))
	add(FactorRevenue, scoreRevenue(lead.Revenue))
	add(FactorRecency, scoreRecency(lead.LastContactedAt, now))

	final := clampScore(score)
	return Result{
		Score:          final,
		Classification: Classify(final),
		Priority:       PriorityFromScore(final),
		Color:          ColorBand(final),
		Factors:        factors,
		Version:        ScoreVersion,
		ComputedAt:     now,
	}
}

// Classify maps a score to Hot, Warm, Cool or Cold.
func Classify(score int) Classification {
	switch {
	case score >= 80:
		return Hot
	case score >= 60:
		return Warm
	case score >= 40:
		return Cool
	default:
		return Cold
	}
}

// PriorityFromScore derives the priority stored on a lead after scoring.
func PriorityFromScore(score int) domain.Priority {
	switch {
	case score >= 80:
		return domain.PriorityHigh
	case score >= 50:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// ColorBand is the badge color the dashboard uses for a score.
func ColorBand(score int) string {
	switch {
	case score >= 80:
		return "emerald"
	case score >= 60:
		return "blue"
	case score >= 40:
		return "yellow"
	default:
		return "rose"
	}
}

func scorePriority(p domain.Priority) float64 {
	switch p {
	case domain.PriorityHigh:
		return 20
	case domain.PriorityMedium:
		return 10
	default:
		return 0
	}
}

// scoreValue rewards larger deals. Zero and negative values count as absent.
func scoreValue(value *float64) float64 {
	if value == nil || *value <= 0 {
		return 0
	}
	switch v := *value; {
	case v >= 100_000:
		return 20
	case v >= 50_000:
		return 15
	case v >= 25_000:
		return 10
	case v >= 10_000:
		return 5
	default:
		return 3
	}
}

// scoreIndustry matches by substring, so "Health Tech / Healthcare" is high value.
func scoreIndustry(industry *string) float64 {
	if industry == nil || *industry == "" {
		return 0
	}
	switch {
	case containsAny(*industry, highValueIndustries):
		return 5
	case containsAny(*industry, mediumValueIndustries):
		return 3
	default:
		return 0
	}
}

func scoreCompanySize(size *string) float64 {
	if size == nil || *size == "" {
		return 0
	}
	switch {
	case containsAny(*size, enterpriseSizes):
		return 10
	case containsAny(*size, largeSizes):
		return 7
	case containsAny(*size, mediumSizes):
		return 5
	default:
		return 2
	}
}

func scoreRevenue(revenue *float64) float64 {
	if revenue == nil || *revenue <= 0 {
		return 0
	}
	switch r := *revenue; {
	case r >= 10_000_000:
		return 10
	case r >= 5_000_000:
		return 7
	case r >= 1_000_000:
		return 5
	default:
		return 2
	}
}

// scoreRecency evaluates how recently the lead was contacted. The branches
// are ordered: a lead contacted 31-60 days ago takes the -2 penalty and a
// lead contacted exactly 30 days ago scores 0.
func scoreRecency(lastContacted *time.Time, now time.Time) float64 {
	if lastContacted == nil {
		return -5
	}
	days := int(math.Floor(float64(now.Sub(*lastContacted)) / float64(day)))
	switch {
	case days < 7:
		return 5
	case days < 14:
		return 3
	case days < 30:
		return 1
	case days > 60:
		return -5
	case days > 30:
		return -2
	default:
		return 0
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func clampScore(value float64) int {
	rounded := int(math.Round(value))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
