package repository

import (
	"strings"
	"testing"

	"sales_crm_backend/internal/leads/domain"
)

func TestListFilterWithoutFiltersMatchesEverything(t *testing.T) {
	where, args := listFilter(ListParams{})
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty filter, got %q %v", where, args)
	}
}

func TestListFilterNumbersPlaceholdersInOrder(t *testing.T) {
	status := domain.StatusQualified
	priority := domain.PriorityHigh

	where, args := listFilter(ListParams{Status: &status, Priority: &priority})

	if where != " WHERE status = $1 AND priority = $2" {
		t.Fatalf("unexpected filter %q", where)
	}
	if len(args) != 2 || args[0] != "qualified" || args[1] != "high" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestInsertQueryReturnsAllColumns(t *testing.T) {
	if !strings.Contains(insertLeadQuery, "RETURNING "+leadColumns) {
		t.Fatal("insert must return the scanned column list")
	}
	if got := strings.Count(insertLeadQuery, "$"); got != len(insertArgs(domain.Lead{})) {
		t.Fatalf("placeholder count %d does not match arg count %d", got, len(insertArgs(domain.Lead{})))
	}
}

func TestMetricsQueryCoversBothDimensions(t *testing.T) {
	query := strings.ToLower(metricsQuery)
	for _, fragment := range []string{"group by priority", "group by status"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected fragment %q in metrics query", fragment)
		}
	}
}
