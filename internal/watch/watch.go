// Package watch keeps a live view of one domain for one account.
//
// A View resolves its subject, arms a phase-transition scheduler on the
// current deadline and re-resolves from fresh reads whenever the deadline is
// crossed. Switching subject cancels everything in flight for the previous
// one; late results for an old subject are dropped.
//
// A Registered result that rests only on the auction's finalized flag is
// re-resolved every recheck interval, a bounded number of times, until the
// registration read confirms it.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/ntunames/internal/auction/domain"
	"github.com/pendergraft/ntunames/internal/scheduler"
)

// StatusSource resolves a domain for an account. domain.Service satisfies it.
type StatusSource interface {
	Status(ctx context.Context, name string, account common.Address) (*domain.Status, error)
}

// Subject is what a view is looking at.
type Subject struct {
	Domain  string
	Account common.Address
}

// State is one published snapshot of a view.
type State struct {
	Subject Subject
	// Status is the last applied resolution. It is kept while a refresh is
	// in flight so the display does not flicker.
	Status *domain.Status
	// Checking is set while a refresh is in flight; Status may be stale.
	Checking bool
	// Remaining is the time left in the current Commit or Reveal window.
	Remaining time.Duration
	Err       error
}

// DefaultRecheckInterval is the wait before re-resolving an unconfirmed
// registration.
const DefaultRecheckInterval = 5 * time.Second

// maxRechecks bounds the re-resolutions of one unconfirmed registration.
const maxRechecks = 12

// Option configures a View.
type Option func(*View)

// WithClock drives the countdown from c.
func WithClock(c scheduler.Clock) Option {
	return func(v *View) { v.clock = c }
}

// WithInterval sets the countdown tick interval.
func WithInterval(d time.Duration) Option {
	return func(v *View) { v.interval = d }
}

// WithRecheck sets how long an unconfirmed registration is trusted before it
// is resolved again.
func WithRecheck(d time.Duration) Option {
	return func(v *View) { v.recheck = d }
}

// WithTimeout bounds each refresh.
func WithTimeout(d time.Duration) Option {
	return func(v *View) { v.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *View) { v.logger = l }
}

// View is a live, cancellable view of one subject at a time. The publish
// callback receives every state change; it runs on internal goroutines and
// must not block or call back into the View.
type View struct {
	src      StatusSource
	publish  func(State)
	clock    scheduler.Clock
	interval time.Duration
	recheck  time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	sched    *scheduler.Scheduler

	// armMu orders scheduler arming against subject switches so a deadline
	// for an old subject is never armed.
	armMu sync.Mutex

	mu       sync.Mutex
	state    State
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	seq      uint64
	applied  uint64
	inflight int
	rechecks int
	closed   bool
	wg       sync.WaitGroup
}

// New creates an idle view.
func New(src StatusSource, publish func(State), opts ...Option) *View {
	v := &View{
		src:      src,
		publish:  publish,
		clock:    scheduler.RealClock{},
		interval: scheduler.DefaultInterval,
		recheck:  DefaultRecheckInterval,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.publish == nil {
		v.publish = func(State) {}
	}
	v.sched = scheduler.New(v.onBoundary,
		scheduler.WithClock(v.clock),
		scheduler.WithInterval(v.interval),
		scheduler.WithTick(v.onTick),
	)
	return v
}

// Show switches the view to name and account and starts resolving it. Work
// for the previous subject is cancelled and its results discarded.
func (v *View) Show(ctx context.Context, name string, account common.Address) {
	v.armMu.Lock()
	v.sched.Stop()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		v.armMu.Unlock()
		return
	}
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	v.ctx, v.cancel = context.WithCancel(ctx)
	v.inflight = 0
	v.rechecks = 0
	v.state = State{Subject: Subject{Domain: name, Account: account}}
	v.mu.Unlock()
	v.armMu.Unlock()

	v.Refresh()
}

// Refresh re-resolves the current subject. It may race with a refresh
// triggered by the scheduler; the newest started refresh wins.
func (v *View) Refresh() {
	v.mu.Lock()
	if v.closed || v.ctx == nil {
		v.mu.Unlock()
		return
	}
	gen := v.gen
	v.seq++
	seq := v.seq
	ctx := v.ctx
	subject := v.state.Subject
	v.inflight++
	v.state.Checking = true
	snapshot := v.state
	v.wg.Add(1)
	v.mu.Unlock()

	v.publish(snapshot)
	go v.refresh(ctx, gen, seq, subject)
}

func (v *View) refresh(parent context.Context, gen, seq uint64, subject Subject) {
	defer v.wg.Done()

	ctx, cancel := context.WithTimeout(parent, v.timeout)
	defer cancel()
	st, err := v.src.Status(ctx, subject.Domain, subject.Account)

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		v.logger.Debug("discarding stale resolution", "domain", subject.Domain, "account", subject.Account.Hex())
		return
	}
	v.inflight--
	if parent.Err() != nil || seq < v.applied {
		v.state.Checking = v.inflight > 0
		snapshot := v.state
		v.mu.Unlock()
		v.publish(snapshot)
		return
	}
	v.applied = seq

	var deadline, wake time.Time
	if err != nil {
		v.state.Err = err
	} else {
		v.state.Status = st
		v.state.Err = nil
		switch {
		case st.Phase.Timed() && st.Deadline > 0:
			deadline = time.Unix(st.Deadline, 0)
			wake = deadline
		case st.RecheckRequired && v.rechecks < maxRechecks:
			v.rechecks++
			wake = v.clock.Now().Add(v.recheck)
		case st.RecheckRequired:
			v.logger.Warn("registration still unconfirmed, giving up rechecks", "domain", subject.Domain, "rechecks", v.rechecks)
		default:
			v.rechecks = 0
		}
	}
	v.state.Checking = v.inflight > 0
	v.state.Remaining = remaining(deadline, v.clock.Now())
	snapshot := v.state
	v.mu.Unlock()

	v.publish(snapshot)
	if err != nil {
		return
	}

	v.armMu.Lock()
	defer v.armMu.Unlock()
	v.mu.Lock()
	current := gen == v.gen && seq == v.applied
	v.mu.Unlock()
	if !current {
		return
	}
	if wake.IsZero() {
		v.sched.Stop()
		return
	}
	v.sched.Arm(wake)
}

func remaining(deadline, now time.Time) time.Duration {
	if deadline.IsZero() || !deadline.After(now) {
		return 0
	}
	return deadline.Sub(now)
}

func (v *View) onTick(d time.Duration) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	// A recheck wait is not a phase countdown.
	if v.state.Status == nil || !v.state.Status.Phase.Timed() {
		v.mu.Unlock()
		return
	}
	v.state.Remaining = d
	snapshot := v.state
	v.mu.Unlock()
	v.publish(snapshot)
}

func (v *View) onBoundary() {
	v.Refresh()
}

// State returns the latest state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Counting reports whether a phase deadline or a recheck is pending.
func (v *View) Counting() bool {
	return v.sched.State() == scheduler.StateCounting
}

// Close cancels in-flight work, stops the countdown and waits for
// outstanding refreshes to return. It is safe to call more than once.
func (v *View) Close() {
	v.armMu.Lock()
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		v.armMu.Unlock()
		return
	}
	v.closed = true
	v.gen++
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()
	v.sched.Stop()
	v.armMu.Unlock()

	v.wg.Wait()
}
