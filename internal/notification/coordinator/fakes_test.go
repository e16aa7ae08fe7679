package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"sales_crm_backend/internal/notification/changefeed"
	"sales_crm_backend/internal/notification/inapp"

	"github.com/google/uuid"
)

var errStoreDown = errors.New("store unavailable")

type fakeStore struct {
	mu          sync.Mutex
	items       []inapp.Notification
	listErr     error
	markReadErr error
	markAllErr  error
	deleteErr   error
	createErr   error
	leadErr     error
	listHook    func(call int)
	listCalls   int
	createCalls int
	leadUpdates map[uuid.UUID]time.Time
}

func newFakeStore(items ...inapp.Notification) *fakeStore {
	return &fakeStore{items: items, leadUpdates: make(map[uuid.UUID]time.Time)}
}

func (s *fakeStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]inapp.Notification, error) {
	s.mu.Lock()
	s.listCalls++
	call := s.listCalls
	hook := s.listHook
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]inapp.Notification, 0, len(s.items))
	for _, n := range s.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeStore) Create(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return inapp.Notification{}, s.createErr
	}
	return s.insertLocked(p), nil
}

func (s *fakeStore) insertLocked(p inapp.CreateParams) inapp.Notification {
	n := inapp.Notification{
		ID:          uuid.New(),
		LeadID:      p.LeadID,
		UserID:      p.UserID,
		Title:       p.Title,
		Message:     p.Message,
		Type:        p.Type,
		ScheduledAt: p.ScheduledAt,
		CreatedAt:   time.Now(),
	}
	s.items = append([]inapp.Notification{n}, s.items...)
	return n
}

func (s *fakeStore) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markReadErr != nil {
		return s.markReadErr
	}
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].UserID == userID {
			s.items[i].IsRead = true
		}
	}
	return nil
}

func (s *fakeStore) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markAllErr != nil {
		return s.markAllErr
	}
	for i := range s.items {
		if s.items[i].UserID == userID {
			s.items[i].IsRead = true
		}
	}
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].UserID == userID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) SetLeadNextFollowUp(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leadErr != nil {
		return s.leadErr
	}
	s.leadUpdates[leadID] = at
	return nil
}

func (s *fakeStore) set(fn func(s *fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// txStore adds the transactional follow-up path.
type txStore struct {
	*fakeStore
	txCalls int
}

func (s *txStore) CreateFollowUp(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCalls++
	if s.createErr != nil {
		return inapp.Notification{}, s.createErr
	}
	if s.leadErr != nil {
		return inapp.Notification{}, s.leadErr
	}
	s.leadUpdates[*p.LeadID] = *p.ScheduledAt
	return s.insertLocked(p), nil
}

type fakeSub struct {
	ch   chan changefeed.Change
	once sync.Once
}

func (s *fakeSub) Changes() <-chan changefeed.Change { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type fakeFeed struct {
	mu         sync.Mutex
	failFirst  int
	attempts   int
	subscribed chan *fakeSub
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subscribed: make(chan *fakeSub, 16)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, userID uuid.UUID) (changefeed.Subscription, error) {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failFirst
	f.mu.Unlock()
	if fail {
		return nil, errors.New("feed unavailable")
	}

	sub := &fakeSub{ch: make(chan changefeed.Change, 16)}
	f.subscribed <- sub
	return sub, nil
}

type recordingSink struct {
	mu       sync.Mutex
	states   []State
	failures []error
	alerts   chan Alert
}

func newRecordingSink() *recordingSink {
	return &recordingSink{alerts: make(chan Alert, 16)}
}

func (s *recordingSink) StateChanged(_ uuid.UUID, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingSink) FollowUpDue(_ uuid.UUID, alert Alert) {
	s.alerts <- alert
}

func (s *recordingSink) FetchFailed(_ uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func (s *recordingSink) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures)
}

func notification(userID uuid.UUID, title string, read bool, createdAt time.Time) inapp.Notification {
	return inapp.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   title,
		Type:      inapp.TypeGeneral,
		IsRead:    read,
		CreatedAt: createdAt,
	}
}
