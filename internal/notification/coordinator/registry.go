package coordinator

import (
	"context"
	"sync"
	"time"

	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/metrics"

	"github.com/google/uuid"
)

// Factory builds an unbound coordinator.
type Factory func() *Coordinator

// Registry hands out one shared coordinator per user. Coordinators are
// reference counted; once the last holder releases one it is kept for the
// idle TTL so that consecutive requests reuse its cache and subscription.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	closed  bool
}

type entry struct {
	coord  *Coordinator
	refs   int
	ready  chan struct{}
	err    error
	idle   *time.Timer
	closed bool
}

func NewRegistry(factory Factory, idleTTL time.Duration, log *logger.Logger) *Registry {
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		log:     log,
		entries: make(map[uuid.UUID]*entry),
	}
}

// Acquire returns the coordinator bound to userID, creating it on first
// use. The returned func must be called exactly once when done.
func (r *Registry) Acquire(ctx context.Context, userID uuid.UUID) (*Coordinator, func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrClosed
	}

	if e, ok := r.entries[userID]; ok {
		e.refs++
		if e.idle != nil {
			e.idle.Stop()
			e.idle = nil
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			r.release(userID, e)
			return nil, nil, ctx.Err()
		}
		if e.err != nil {
			r.release(userID, e)
			return nil, nil, e.err
		}
		return e.coord, r.releaser(userID, e), nil
	}

	e := &entry{coord: r.factory(), refs: 1, ready: make(chan struct{})}
	r.entries[userID] = e
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()

	e.err = e.coord.SetUser(ctx, userID)
	close(e.ready)
	if e.err != nil {
		r.log.Warn("notification session start failed", "error", e.err, "user_id", userID.String())
		r.release(userID, e)
		return nil, nil, e.err
	}
	return e.coord, r.releaser(userID, e), nil
}

func (r *Registry) releaser(userID uuid.UUID, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(userID, e) })
	}
}

func (r *Registry) release(userID uuid.UUID, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	if r.idleTTL > 0 && e.err == nil && !r.closed && !e.closed {
		e.idle = time.AfterFunc(r.idleTTL, func() { r.expire(userID, e) })
		r.mu.Unlock()
		return
	}
	shouldClose := r.detachLocked(userID, e)
	r.mu.Unlock()

	if shouldClose {
		r.closeEntry(e)
	}
}

func (r *Registry) expire(userID uuid.UUID, e *entry) {
	r.mu.Lock()
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	e.idle = nil
	shouldClose := r.detachLocked(userID, e)
	r.mu.Unlock()

	if shouldClose {
		r.closeEntry(e)
	}
}

// detachLocked removes e from the registry and reports whether the caller
// must close it.
func (r *Registry) detachLocked(userID uuid.UUID, e *entry) bool {
	if r.entries[userID] == e {
		delete(r.entries, userID)
	}
	if e.closed {
		return false
	}
	e.closed = true
	return true
}

func (r *Registry) closeEntry(e *entry) {
	e.coord.Close()
	metrics.ActiveSessions.Dec()
}

// Len returns the number of live coordinators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close shuts every coordinator down. Later Acquire calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	var toClose []*entry
	for userID, e := range r.entries {
		if e.idle != nil {
			e.idle.Stop()
			e.idle = nil
		}
		if r.detachLocked(userID, e) {
			toClose = append(toClose, e)
		}
	}
	r.mu.Unlock()

	for _, e := range toClose {
		r.closeEntry(e)
	}
}
