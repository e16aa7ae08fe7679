package management

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"sales_crm_backend/internal/events"
	"sales_crm_backend/internal/leads/domain"
	"sales_crm_backend/internal/leads/repository"
	"sales_crm_backend/internal/leads/scoring"
	"sales_crm_backend/internal/leads/transport"
	"sales_crm_backend/platform/apperr"
	"sales_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.Lead
	activities []domain.Activity
	createErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{leads: map[uuid.UUID]domain.Lead{}}
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (r *memoryRepo) List(_ context.Context, params repository.ListParams) ([]domain.Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Lead, 0)
	for _, lead := range r.leads {
		if params.Status != nil && lead.Status != *params.Status {
			continue
		}
		if params.Priority != nil && lead.Priority != *params.Priority {
			continue
		}
		out = append(out, lead)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Create(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	if r.createErr != nil {
		return domain.Lead{}, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *memoryRepo) CreateBatch(ctx context.Context, leads []domain.Lead) error {
	for _, lead := range leads {
		if _, err := r.Create(ctx, lead); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryRepo) Update(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[lead.ID]; !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *memoryRepo) UpdatePriority(_ context.Context, id uuid.UUID, priority domain.Priority) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	lead.Priority = priority
	r.leads[id] = lead
	return lead, nil
}

func (r *memoryRepo) SetNextFollowUp(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.NextFollowUp = &at
	r.leads[id] = lead
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.leads, id)
	return nil
}

func (r *memoryRepo) AddActivity(_ context.Context, leadID uuid.UUID, action, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, domain.Activity{ID: uuid.New(), LeadID: leadID, Action: action, Description: description})
	return nil
}

func (r *memoryRepo) ListActivities(_ context.Context, leadID uuid.UUID, _ int) ([]domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetMetrics(_ context.Context) (repository.LeadMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := repository.LeadMetrics{ByPriority: map[domain.Priority]int{}, ByStatus: map[domain.Status]int{}}
	for _, lead := range r.leads {
		m.Total++
		m.ByPriority[lead.Priority]++
		m.ByStatus[lead.Status]++
	}
	return m, nil
}

func (r *memoryRepo) actions(leadID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.activities {
		if a.LeadID == leadID {
			out = append(out, a.Action)
		}
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) (*Service, *events.InMemoryBus) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	svc := New(repo, bus, log, "US")
	svc.now = func() time.Time { return fixedNow }
	return svc, bus
}

func strPtr(s string) *string { return &s }

func TestCreateDerivesPriorityFromScore(t *testing.T) {
	repo := newMemoryRepo()
	svc, bus := newTestService(repo)

	var mu sync.Mutex
	var createdScores []int
	bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		createdScores = append(createdScores, e.(events.LeadCreated).Score)
		return nil
	}))

	// Submitted: 50 + 20 (high) - 10 (lost) - 5 (never contacted) = 55 -> medium.
	// Stored with medium: 50 + 10 - 10 - 5 = 45.
	resp, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Company:   "Analytical Engines",
		Priority:  domain.PriorityHigh,
		Status:    domain.StatusLost,
		Source:    domain.SourceReferral,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bus.Wait()

	if resp.Priority != domain.PriorityMedium {
		t.Fatalf("expected derived priority medium, got %s", resp.Priority)
	}
	if resp.Score != 45 || resp.Classification != scoring.Cool {
		t.Fatalf("expected stored lead score 45/Cool, got %d/%s", resp.Score, resp.Classification)
	}

	stored, _ := repo.GetByID(context.Background(), resp.ID)
	if stored.Priority != domain.PriorityMedium {
		t.Fatalf("expected stored priority medium, got %s", stored.Priority)
	}
	fetched, err := svc.GetByID(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Score != resp.Score {
		t.Fatalf("expected get to report the create score %d, got %d", resp.Score, fetched.Score)
	}

	if got := repo.actions(resp.ID); len(got) != 1 || got[0] != domain.ActivityCreated {
		t.Fatalf("expected created activity, got %v", got)
	}
	if desc := repo.activities[0].Description; desc != "Lead created with score 45" {
		t.Fatalf("unexpected activity description %q", desc)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(createdScores) != 1 || createdScores[0] != 45 {
		t.Fatalf("expected LeadCreated with score 45, got %v", createdScores)
	}
}

func TestCreateDefaultsStatusAndNormalizesPhone(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	resp, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Company:   "Navy",
		Phone:     strPtr("(201) 555-0123"),
		Source:    domain.SourceWebsite,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != domain.StatusNew {
		t.Fatalf("expected status new, got %s", resp.Status)
	}
	if resp.Phone == nil || *resp.Phone != "+12015550123" {
		t.Fatalf("expected normalized phone, got %v", resp.Phone)
	}
}

func TestCreateWrapsRepositoryFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.createErr = errors.New("connection reset")
	svc, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		FirstName: "A", LastName: "B", Email: "a@b.co", Company: "C", Source: domain.SourceOther,
	})
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestUpdateMergesAndRecomputesPriority(t *testing.T) {
	repo := newMemoryRepo()
	svc, bus := newTestService(repo)

	created, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Company: "Bletchley",
		Source: domain.SourceEvent, Industry: strPtr("Agriculture"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Priority != domain.PriorityMedium {
		t.Fatalf("expected medium after create, got %s", created.Priority)
	}

	var updatedEvents int
	var mu sync.Mutex
	bus.Subscribe(events.LeadUpdated{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		mu.Lock()
		updatedEvents++
		mu.Unlock()
		return nil
	}))

	var req transport.UpdateLeadRequest
	body := `{"status":"negotiation","value":150000,"companySize":"Enterprise","industry":null,"lastContactedAt":"2024-05-31T12:00:00Z"}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	updated, err := svc.Update(context.Background(), created.ID, req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	bus.Wait()

	if updated.Priority != domain.PriorityHigh {
		t.Fatalf("expected high after update, got %s (score %d)", updated.Priority, updated.Score)
	}
	if updated.Industry != nil {
		t.Fatalf("expected industry to be cleared, got %v", *updated.Industry)
	}
	if updated.FirstName != "Alan" {
		t.Fatalf("expected untouched first name, got %q", updated.FirstName)
	}

	actions := repo.actions(created.ID)
	if len(actions) != 3 || actions[2] != domain.ActivityStatusChanged {
		t.Fatalf("expected created, updated, status_changed activities, got %v", actions)
	}

	mu.Lock()
	defer mu.Unlock()
	if updatedEvents != 1 {
		t.Fatalf("expected one LeadUpdated event, got %d", updatedEvents)
	}
}

func TestSetPriorityOverridesUntilNextUpdate(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	created, _ := svc.Create(context.Background(), transport.CreateLeadRequest{
		FirstName: "Katherine", LastName: "Johnson", Email: "kj@example.com", Company: "NASA", Source: domain.SourceOther,
	})

	overridden, err := svc.SetPriority(context.Background(), created.ID, transport.UpdatePriorityRequest{Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if overridden.Priority != domain.PriorityHigh {
		t.Fatalf("expected manual high, got %s", overridden.Priority)
	}

	notes := "called back"
	updated, err := svc.Update(context.Background(), created.ID, transport.UpdateLeadRequest{
		Notes: transport.Optional[string]{Value: &notes, Set: true},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	// The override feeds the recompute: 50 + 20 + 5 (new) - 5 = 70 -> medium.
	// The stored medium lead then scores 50 + 10 + 5 - 5 = 60.
	if updated.Priority != domain.PriorityMedium || updated.Score != 60 {
		t.Fatalf("expected recompute to medium/60, got %s/%d", updated.Priority, updated.Score)
	}
	fetched, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Score != updated.Score || fetched.Priority != updated.Priority {
		t.Fatalf("expected get to match update, got %s/%d", fetched.Priority, fetched.Score)
	}
}

func TestUpdateUnknownLeadIsNotFound(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())

	_, err := svc.Update(context.Background(), uuid.New(), transport.UpdateLeadRequest{})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestImportCreatesAllLeads(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	resp, err := svc.Import(context.Background(), transport.ImportLeadsRequest{Leads: []transport.CreateLeadRequest{
		{FirstName: "A", LastName: "One", Email: "a@example.com", Company: "A Co", Source: domain.SourceWebScraping},
		{FirstName: "B", LastName: "Two", Email: "b@example.com", Company: "B Co", Source: domain.SourceWebScraping},
	}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if resp.Imported != 2 || len(repo.leads) != 2 {
		t.Fatalf("expected 2 imported leads, got %d/%d", resp.Imported, len(repo.leads))
	}
}

func TestStatsComputesConversionRate(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	for _, status := range []domain.Status{domain.StatusClosed, domain.StatusNew, domain.StatusNew, domain.StatusLost} {
		id := uuid.New()
		repo.leads[id] = domain.Lead{ID: id, Status: status, Priority: domain.PriorityLow}
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.New != 2 || stats.Closed != 1 || stats.Low != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.ConversionRate != 0.25 {
		t.Fatalf("expected conversion 0.25, got %v", stats.ConversionRate)
	}
}

func TestStatsWithNoLeadsHasZeroConversion(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ConversionRate != 0 {
		t.Fatalf("expected zero conversion, got %v", stats.ConversionRate)
	}
}

func TestRescoreAllUpdatesDriftedPriorities(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	drifted := uuid.New()
	repo.leads[drifted] = domain.Lead{ID: drifted, Status: domain.StatusNew, Priority: domain.PriorityHigh}
	steady := uuid.New()
	repo.leads[steady] = domain.Lead{ID: steady, Status: domain.StatusNew, Priority: domain.PriorityMedium}

	dry, err := svc.RescoreAll(context.Background(), 10, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.Scanned != 2 || dry.Changed != 1 {
		t.Fatalf("unexpected dry run result %+v", dry)
	}
	if repo.leads[drifted].Priority != domain.PriorityHigh {
		t.Fatal("dry run must not write")
	}

	// Scoring the stored high priority gives 50 + 20 + 5 - 5 = 70, so medium.
	if _, err := svc.RescoreAll(context.Background(), 10, false); err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if repo.leads[drifted].Priority != domain.PriorityMedium {
		t.Fatalf("expected drifted lead to become medium, got %s", repo.leads[drifted].Priority)
	}
}
