package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sales_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Channel is the LISTEN/NOTIFY channel populated by the notifications trigger.
const Channel = "notification_changes"

// ErrFeedClosed is returned by Subscribe after Close.
var ErrFeedClosed = errors.New("change feed closed")

// PostgresFeed holds one dedicated LISTEN connection and fans notifications
// out to per-user subscribers. When the connection fails every subscription
// is closed so that subscribers resubscribe and refresh.
type PostgresFeed struct {
	dsn string
	log *logger.Logger

	mu      sync.Mutex
	subs    map[uuid.UUID]map[*subscription]struct{}
	cancel  context.CancelFunc
	running bool
	closed  bool
}

func NewPostgresFeed(dsn string, log *logger.Logger) *PostgresFeed {
	return &PostgresFeed{
		dsn:  dsn,
		log:  log,
		subs: make(map[uuid.UUID]map[*subscription]struct{}),
	}
}

func (f *PostgresFeed) Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFeedClosed
	}
	if !f.running {
		if err := f.startLocked(ctx); err != nil {
			return nil, err
		}
	}

	var sub *subscription
	sub = newSubscription(userID, func() { f.remove(sub) })
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[*subscription]struct{})
	}
	f.subs[userID][sub] = struct{}{}
	return sub, nil
}

func (f *PostgresFeed) startLocked(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, f.dsn)
	if err != nil {
		return fmt.Errorf("connect change feed: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		_ = conn.Close(context.Background())
		return fmt.Errorf("listen %s: %w", Channel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.running = true
	f.log.FeedEvent("listen", "", nil)

	go f.loop(loopCtx, conn)
	return nil
}

func (f *PostgresFeed) loop(ctx context.Context, conn *pgx.Conn) {
	defer func() { _ = conn.Close(context.Background()) }()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.FeedEvent("drop", "", err)
			}
			f.dropAll()
			return
		}

		change, err := Decode([]byte(n.Payload))
		if err != nil {
			f.log.Warn("ignoring malformed change payload", "error", err)
			continue
		}
		f.dispatch(change)
	}
}

func (f *PostgresFeed) dispatch(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs[c.UserID] {
		if !sub.deliver(c) {
			f.log.Warn("change subscriber buffer full", "user_id", c.UserID.String())
		}
	}
}

func (f *PostgresFeed) remove(sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	set := f.subs[sub.userID]
	delete(set, sub)
	if len(set) == 0 {
		delete(f.subs, sub.userID)
	}
}

func (f *PostgresFeed) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for userID, set := range f.subs {
		for sub := range set {
			sub.shutdown()
		}
		delete(f.subs, userID)
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.running = false
}

// Close stops listening and closes all subscriptions.
func (f *PostgresFeed) Close() {
	f.mu.Lock()
	f.closed = true
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.dropAll()
}
