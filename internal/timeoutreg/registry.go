// Package timeoutreg enforces per-query deadlines and makes them
// observable for cancellation (spec.md §4.5). It generalizes the
// teacher's internal/infra/resilience.Timeout — a single static
// context.WithTimeout wrapper — into a per-role lookup table backed by a
// live-queries map, one mutex, short critical sections (spec.md §5).
package timeoutreg

import (
	"context"
	"sync"
	"time"
)

// CancelReason explains why a Handle's context was cancelled.
type CancelReason string

const (
	ReasonTimeout CancelReason = "timeout"
	ReasonClient  CancelReason = "client_cancel"
	ReasonShutdown CancelReason = "shutdown"
)

// Handle is returned by Register and used by the executor to observe
// cancellation and to unregister when the query finishes.
type Handle struct {
	QID       string
	TimeoutMs int64
	ctx       context.Context
	cancel    context.CancelFunc
}

// Context returns the per-query context; it is cancelled when the
// registry's timeout fires or Cancel is called explicitly.
func (h Handle) Context() context.Context { return h.ctx }

// entry is the registry's bookkeeping record for one in-flight query.
type entry struct {
	user      string
	role      string
	startedAt time.Time
	timeoutMs int64
	cancel    context.CancelFunc
	reason    CancelReason
	cancelled bool
}

// Info is a read-only snapshot of one registered query, returned by List.
type Info struct {
	QID       string
	User      string
	Role      string
	StartedAt time.Time
	TimeoutMs int64
	Cancelled bool
	Reason    CancelReason
}

// Registry tracks in-flight queries and their deadlines, computing the
// timeout for a new query from a per-role lookup table (spec.md §4.5:
// "admin > service > analyst").
type Registry struct {
	mu          sync.Mutex
	live        map[string]*entry
	roleTimeout map[string]time.Duration
	defaultTO   time.Duration
	onFire      func(qid string, reason CancelReason)
}

// New creates a Registry. roleTimeout maps role name to its deadline;
// defaultTO is used for roles absent from the map. onFire, if non-nil, is
// invoked (in its own goroutine) whenever a timeout actually fires, so the
// executor can flip the AuditRow to error/reason=timeout without the
// registry needing to know about audit rows.
func New(roleTimeout map[string]time.Duration, defaultTO time.Duration, onFire func(qid string, reason CancelReason)) *Registry {
	rt := make(map[string]time.Duration, len(roleTimeout))
	for k, v := range roleTimeout {
		rt[k] = v
	}
	return &Registry{
		live:        make(map[string]*entry),
		roleTimeout: rt,
		defaultTO:   defaultTO,
		onFire:      onFire,
	}
}

// Register starts tracking qid, returning the computed timeout and a
// Handle whose Context is cancelled when that timeout fires or Cancel is
// called. Spec.md §4.4 step 1: the executor must register before
// acquiring a connection.
func (r *Registry) Register(ctx context.Context, qid, user, role string) (time.Duration, Handle) {
	to := r.timeoutFor(role)
	childCtx, cancel := context.WithTimeout(ctx, to)

	r.mu.Lock()
	r.live[qid] = &entry{
		user:      user,
		role:      role,
		startedAt: time.Now(),
		timeoutMs: to.Milliseconds(),
		cancel:    cancel,
	}
	r.mu.Unlock()

	go r.watch(childCtx, qid)

	return to, Handle{QID: qid, TimeoutMs: to.Milliseconds(), ctx: childCtx, cancel: cancel}
}

// watch blocks until childCtx is done, then marks the entry cancelled and
// fires onFire iff the context ended with DeadlineExceeded (an explicit
// Cancel or Unregister ends it with context.Canceled, so nothing fires).
func (r *Registry) watch(ctx context.Context, qid string) {
	<-ctx.Done()
	if ctx.Err() != context.DeadlineExceeded {
		return
	}

	r.mu.Lock()
	e, ok := r.live[qid]
	if ok {
		e.cancelled = true
		e.reason = ReasonTimeout
	}
	r.mu.Unlock()

	if ok && r.onFire != nil {
		go r.onFire(qid, ReasonTimeout)
	}
}

// Unregister stops tracking qid and releases its context (spec.md §4.4
// step 5). Safe to call even if qid was already cancelled or removed.
func (r *Registry) Unregister(qid string) {
	r.mu.Lock()
	e, ok := r.live[qid]
	delete(r.live, qid)
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
}

// Cancel marks qid cancelled for reason and cancels its context,
// signalling the executor to release the connection and flip the
// AuditRow to error (spec.md §4.5).
func (r *Registry) Cancel(qid string, reason CancelReason) {
	r.mu.Lock()
	e, ok := r.live[qid]
	if ok {
		e.cancelled = true
		e.reason = reason
	}
	r.mu.Unlock()

	if ok {
		e.cancel()
	}
}

// List returns a snapshot of every currently-registered query.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.live))
	for qid, e := range r.live {
		out = append(out, Info{
			QID:       qid,
			User:      e.user,
			Role:      e.role,
			StartedAt: e.startedAt,
			TimeoutMs: e.timeoutMs,
			Cancelled: e.cancelled,
			Reason:    e.reason,
		})
	}
	return out
}

// timeoutFor resolves the per-role deadline, falling back to defaultTO.
func (r *Registry) timeoutFor(role string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if to, ok := r.roleTimeout[role]; ok {
		return to
	}
	return r.defaultTO
}

// Len reports how many queries are currently registered (used by
// health/metrics reporting).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
