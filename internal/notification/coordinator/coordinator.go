// Package coordinator keeps one user's notification list, unread count and
// load/error flags consistent with the store. It applies mutations
// optimistically, refetches on every change-feed event and surfaces due
// follow-ups and fetch failures through a Sink.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"sales_crm_backend/internal/notification/changefeed"
	"sales_crm_backend/internal/notification/inapp"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	DefaultErrorAdvisoryInterval = 30 * time.Second
	DefaultAlertWindow           = 5 * time.Minute
	DefaultBackoffInitial        = time.Second
	DefaultBackoffMax            = time.Minute
)

// State is a point-in-time view of a coordinator.
type State struct {
	Ready         bool                 `json:"ready"`
	Notifications []inapp.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
	Loading       bool                 `json:"loading"`
	Error         bool                 `json:"error"`
	LastErrorAt   *time.Time           `json:"lastErrorAt,omitempty"`
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithSink(s Sink) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.sink = s
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithErrorAdvisoryInterval sets the minimum gap between two FetchFailed
// calls on the sink.
func WithErrorAdvisoryInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.advisoryInterval = d }
}

// WithAlertWindow sets how close to now an inserted follow-up must be
// scheduled to raise an alert.
func WithAlertWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.alertWindow = d }
}

// WithBackoff bounds the delay between resubscribe attempts.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(c *Coordinator) {
		c.backoffInitial = initial
		c.backoffMax = maxInterval
	}
}

// WithRollback toggles restoring the cache when an optimistic write fails.
func WithRollback(enabled bool) Option {
	return func(c *Coordinator) { c.rollback = enabled }
}

type Coordinator struct {
	store Store
	feed  changefeed.Feed
	sink  Sink
	log   *logger.Logger
	now   func() time.Time

	advisoryInterval time.Duration
	alertWindow      time.Duration
	backoffInitial   time.Duration
	backoffMax       time.Duration
	rollback         bool

	// identityMu serializes SetUser, ClearUser and Close.
	identityMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	userID        uuid.UUID
	generation    uint64
	notifications []inapp.Notification
	unread        int
	inflight      int
	failed        bool
	lastErrorAt   time.Time
	nextSeq       uint64
	resolvedSeq   uint64 // newest refresh that completed, successfully or not
	pendingRead   map[uuid.UUID]int
	pendingDelete map[uuid.UUID]int
	watchCancel   context.CancelFunc
	watchDone     chan struct{}
}

// New builds a coordinator with no user. feed may be nil, in which case
// state only changes through explicit calls.
func New(store Store, feed changefeed.Feed, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            store,
		feed:             feed,
		sink:             noopSink{},
		log:              logger.Discard(),
		now:              time.Now,
		advisoryInterval: DefaultErrorAdvisoryInterval,
		alertWindow:      DefaultAlertWindow,
		backoffInitial:   DefaultBackoffInitial,
		backoffMax:       DefaultBackoffMax,
		rollback:         true,
		pendingRead:      make(map[uuid.UUID]int),
		pendingDelete:    make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetUser switches the coordinator to userID. The previous user's
// subscription is torn down and its state discarded before the new
// subscription is opened and the first refresh runs. A failed first refresh
// is reported through the state's error flag, not the return value.
func (c *Coordinator) SetUser(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		c.ClearUser()
		return nil
	}

	c.identityMu.Lock()
	defer c.identityMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	same := c.userID == userID
	c.mu.Unlock()
	if same {
		return nil
	}

	c.teardown()

	c.mu.Lock()
	c.userID = userID
	var ready chan struct{}
	if c.feed != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		ready = make(chan struct{})
		done := make(chan struct{})
		c.watchCancel = cancel
		c.watchDone = done
		go c.watch(watchCtx, userID, ready, done)
	}
	c.mu.Unlock()

	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_ = c.Refresh(ctx)
	return nil
}

// ClearUser drops the current user, its subscription and its state.
func (c *Coordinator) ClearUser() {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()
	c.teardown()
}

// Close releases the subscription. The coordinator cannot be reused.
func (c *Coordinator) Close() {
	c.identityMu.Lock()
	defer c.identityMu.Unlock()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.teardown()
}

// UserID returns the current user, or uuid.Nil.
func (c *Coordinator) UserID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	cancel, done := c.watchCancel, c.watchDone
	c.watchCancel, c.watchDone = nil, nil
	c.userID = uuid.Nil
	c.generation++
	c.notifications = nil
	c.unread = 0
	c.inflight = 0
	c.failed = false
	c.lastErrorAt = time.Time{}
	c.pendingRead = make(map[uuid.UUID]int)
	c.pendingDelete = make(map[uuid.UUID]int)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() State {
	items := make([]inapp.Notification, len(c.notifications))
	copy(items, c.notifications)

	s := State{
		Ready:         c.userID != uuid.Nil,
		Notifications: items,
		UnreadCount:   c.unread,
		Loading:       c.inflight > 0,
		Error:         c.failed,
	}
	if !c.lastErrorAt.IsZero() {
		at := c.lastErrorAt
		s.LastErrorAt = &at
	}
	return s
}

// Refresh refetches the user's notifications and replaces the cache. A
// response that arrives after a newer one has been applied is discarded.
// On failure the previous list is kept and the error flag is raised.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	userID, gen := c.userID, c.generation
	if userID == uuid.Nil {
		c.mu.Unlock()
		return nil
	}
	c.nextSeq++
	seq := c.nextSeq
	c.inflight++
	c.mu.Unlock()

	items, err := c.store.ListForUser(ctx, userID)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		metrics.NotificationRefreshes.WithLabelValues("discarded").Inc()
		return nil
	}
	c.inflight--

	if seq < c.resolvedSeq {
		state := c.snapshotLocked()
		c.mu.Unlock()
		metrics.NotificationRefreshes.WithLabelValues("stale").Inc()
		c.sink.StateChanged(userID, state)
		return nil
	}

	c.resolvedSeq = seq

	if err != nil {
		c.failed = true
		now := c.now()
		advise := c.lastErrorAt.IsZero() || now.Sub(c.lastErrorAt) > c.advisoryInterval
		if advise {
			c.lastErrorAt = now
		}
		state := c.snapshotLocked()
		c.mu.Unlock()

		metrics.NotificationRefreshes.WithLabelValues("error").Inc()
		c.log.Warn("notification refresh failed", "error", err, "user_id", userID.String())
		c.sink.StateChanged(userID, state)
		if advise {
			c.sink.FetchFailed(userID, err)
		}
		return err
	}

	c.notifications = c.overlayPendingLocked(items)
	c.unread = countUnread(c.notifications)
	c.failed = false
	state := c.snapshotLocked()
	c.mu.Unlock()

	metrics.NotificationRefreshes.WithLabelValues("ok").Inc()
	c.sink.StateChanged(userID, state)
	return nil
}

// overlayPendingLocked keeps in-flight optimistic writes visible over a
// fetched list that may predate them.
func (c *Coordinator) overlayPendingLocked(items []inapp.Notification) []inapp.Notification {
	out := make([]inapp.Notification, 0, len(items))
	for _, n := range items {
		if c.pendingDelete[n.ID] > 0 {
			continue
		}
		if c.pendingRead[n.ID] > 0 {
			n.IsRead = true
		}
		out = append(out, n)
	}
	return out
}

// MarkAsRead flips one notification to read before persisting it. Marking
// an already read notification leaves the unread count unchanged.
func (c *Coordinator) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	userID, gen := c.userID, c.generation
	if userID == uuid.Nil {
		c.mu.Unlock()
		return nil
	}
	flipped := c.setReadLocked(id, true)
	c.pendingRead[id]++
	state := c.snapshotLocked()
	c.mu.Unlock()
	c.sink.StateChanged(userID, state)

	err := c.store.MarkRead(ctx, userID, id)

	c.mu.Lock()
	rolledBack := false
	if gen == c.generation {
		release(c.pendingRead, id)
		if err != nil && c.rollback && flipped && c.pendingRead[id] == 0 {
			rolledBack = c.setReadLocked(id, false)
		}
	}
	state = c.snapshotLocked()
	c.mu.Unlock()

	metrics.NotificationMutations.WithLabelValues("mark_read", result(err)).Inc()
	if rolledBack {
		c.sink.StateChanged(userID, state)
	}
	return err
}

// MarkAllAsRead flips every cached notification to read before persisting.
func (c *Coordinator) MarkAllAsRead(ctx context.Context) error {
	c.mu.Lock()
	userID, gen := c.userID, c.generation
	if userID == uuid.Nil {
		c.mu.Unlock()
		return nil
	}
	var flipped []uuid.UUID
	for i := range c.notifications {
		if !c.notifications[i].IsRead {
			c.notifications[i].IsRead = true
			flipped = append(flipped, c.notifications[i].ID)
			c.pendingRead[c.notifications[i].ID]++
		}
	}
	c.unread = 0
	state := c.snapshotLocked()
	c.mu.Unlock()
	c.sink.StateChanged(userID, state)

	err := c.store.MarkAllRead(ctx, userID)

	c.mu.Lock()
	rolledBack := false
	if gen == c.generation {
		for _, id := range flipped {
			release(c.pendingRead, id)
		}
		if err != nil && c.rollback {
			for _, id := range flipped {
				if c.pendingRead[id] == 0 && c.setReadLocked(id, false) {
					rolledBack = true
				}
			}
		}
	}
	state = c.snapshotLocked()
	c.mu.Unlock()

	metrics.NotificationMutations.WithLabelValues("mark_all_read", result(err)).Inc()
	if rolledBack {
		c.sink.StateChanged(userID, state)
	}
	return err
}

// Delete removes a notification from the cache before deleting it from the
// store.
func (c *Coordinator) Delete(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	userID, gen := c.userID, c.generation
	if userID == uuid.Nil {
		c.mu.Unlock()
		return nil
	}
	var removed *inapp.Notification
	if idx := c.indexLocked(id); idx >= 0 {
		n := c.notifications[idx]
		removed = &n
		c.notifications = append(c.notifications[:idx:idx], c.notifications[idx+1:]...)
		c.unread = countUnread(c.notifications)
	}
	c.pendingDelete[id]++
	state := c.snapshotLocked()
	c.mu.Unlock()
	c.sink.StateChanged(userID, state)

	err := c.store.Delete(ctx, userID, id)

	c.mu.Lock()
	rolledBack := false
	if gen == c.generation {
		release(c.pendingDelete, id)
		if err != nil && c.rollback && removed != nil && c.indexLocked(id) < 0 {
			c.insertLocked(*removed)
			rolledBack = true
		}
	}
	state = c.snapshotLocked()
	c.mu.Unlock()

	metrics.NotificationMutations.WithLabelValues("delete", result(err)).Inc()
	if rolledBack {
		c.sink.StateChanged(userID, state)
	}
	return err
}

// ScheduleFollowUp creates a follow-up notification for the current user
// and records scheduledAt as the lead's next follow-up. Without a
// transactional store the writes are independent and a failure is returned
// as *FollowUpError.
func (c *Coordinator) ScheduleFollowUp(ctx context.Context, leadID uuid.UUID, scheduledAt time.Time, title, message string) (inapp.Notification, error) {
	userID := c.UserID()
	if userID == uuid.Nil {
		return inapp.Notification{}, nil
	}

	params := inapp.CreateParams{
		LeadID:      &leadID,
		UserID:      userID,
		Title:       title,
		Message:     message,
		Type:        inapp.TypeFollowUp,
		ScheduledAt: &scheduledAt,
	}

	var (
		n   inapp.Notification
		err error
	)
	if tx, ok := c.store.(FollowUpTransactor); ok {
		n, err = tx.CreateFollowUp(ctx, params)
	} else {
		n, err = c.scheduleSequential(ctx, params)
	}
	metrics.NotificationMutations.WithLabelValues("schedule_follow_up", result(err)).Inc()

	if err != nil {
		var fe *FollowUpError
		if errors.As(err, &fe) && fe.Notification != nil {
			_ = c.Refresh(ctx)
		}
		return n, err
	}

	_ = c.Refresh(ctx)
	return n, nil
}

func (c *Coordinator) scheduleSequential(ctx context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	n, err := c.store.Create(ctx, p)
	if err != nil {
		return inapp.Notification{}, &FollowUpError{NotificationErr: err}
	}
	if err := c.store.SetLeadNextFollowUp(ctx, *p.LeadID, *p.ScheduledAt); err != nil {
		return n, &FollowUpError{Notification: &n, LeadErr: err}
	}
	return n, nil
}

func (c *Coordinator) watch(ctx context.Context, userID uuid.UUID, ready, done chan struct{}) {
	defer close(done)
	signalReady := sync.OnceFunc(func() { close(ready) })
	defer signalReady()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffInitial
	b.MaxInterval = c.backoffMax
	b.MaxElapsedTime = 0
	b.Reset()

	uid := userID.String()
	recovering := false
	for {
		sub, err := c.feed.Subscribe(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.FeedResubscribes.WithLabelValues("error").Inc()
			c.log.FeedEvent("subscribe_failed", uid, err)
			recovering = true
			signalReady()
			if !sleepCtx(ctx, b.NextBackOff()) {
				return
			}
			continue
		}

		b.Reset()
		if recovering {
			metrics.FeedResubscribes.WithLabelValues("ok").Inc()
			c.log.FeedEvent("resubscribed", uid, nil)
			_ = c.Refresh(ctx)
		} else {
			c.log.FeedEvent("subscribed", uid, nil)
		}
		signalReady()

		c.consume(ctx, userID, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}

		c.log.FeedEvent("dropped", uid, nil)
		recovering = true
		if !sleepCtx(ctx, b.NextBackOff()) {
			return
		}
	}
}

func (c *Coordinator) consume(ctx context.Context, userID uuid.UUID, sub changefeed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.Changes():
			if !ok {
				return
			}
			if change.UserID != userID {
				continue
			}
			if alert, due := c.dueAlert(change); due {
				metrics.FollowUpAlerts.Inc()
				c.sink.FollowUpDue(userID, alert)
			}
			_ = c.Refresh(ctx)
		}
	}
}

func (c *Coordinator) dueAlert(change changefeed.Change) (Alert, bool) {
	r := change.Record
	if change.Op != changefeed.OpInsert || r == nil {
		return Alert{}, false
	}
	if r.Type != inapp.TypeFollowUp || r.ScheduledAt == nil {
		return Alert{}, false
	}
	if r.ScheduledAt.Sub(c.now()) >= c.alertWindow {
		return Alert{}, false
	}
	return Alert{
		NotificationID: r.ID,
		LeadID:         r.LeadID,
		Title:          r.Title,
		Message:        r.Message,
		ScheduledAt:    *r.ScheduledAt,
	}, true
}

func (c *Coordinator) indexLocked(id uuid.UUID) int {
	for i := range c.notifications {
		if c.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

// setReadLocked reports whether the entry existed and changed.
func (c *Coordinator) setReadLocked(id uuid.UUID, read bool) bool {
	idx := c.indexLocked(id)
	if idx < 0 || c.notifications[idx].IsRead == read {
		return false
	}
	c.notifications[idx].IsRead = read
	c.unread = countUnread(c.notifications)
	return true
}

// insertLocked puts n back in newest-first order.
func (c *Coordinator) insertLocked(n inapp.Notification) {
	pos := len(c.notifications)
	for i := range c.notifications {
		if c.notifications[i].CreatedAt.Before(n.CreatedAt) {
			pos = i
			break
		}
	}
	c.notifications = append(c.notifications, inapp.Notification{})
	copy(c.notifications[pos+1:], c.notifications[pos:])
	c.notifications[pos] = n
	c.unread = countUnread(c.notifications)
}

func countUnread(items []inapp.Notification) int {
	n := 0
	for i := range items {
		if !items[i].IsRead {
			n++
		}
	}
	return n
}

func release(m map[uuid.UUID]int, id uuid.UUID) {
	if m[id] <= 1 {
		delete(m, id)
		return
	}
	m[id]--
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
