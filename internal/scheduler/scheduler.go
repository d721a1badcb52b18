// Package scheduler implements the local phase-transition timer.
//
// A Scheduler watches a single deadline. While a deadline is armed it ticks
// once per interval, reports the remaining time, and when the deadline is
// crossed it returns to Idle and invokes the boundary callback exactly once.
// The callback must trigger a fresh resolution; the scheduler never guesses
// the next phase itself.
package scheduler

import (
	"sync"
	"time"

	"github.com/pendergraft/ntunames/internal/observability/metrics"
)

// State is the scheduler state.
type State int

const (
	StateIdle State = iota
	StateCounting
)

func (s State) String() string {
	if s == StateCounting {
		return "counting"
	}
	return "idle"
}

// DefaultInterval is the countdown resolution.
const DefaultInterval = time.Second

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTick registers a callback invoked on every tick with the remaining
// time, clamped at zero.
func WithTick(fn func(remaining time.Duration)) Option {
	return func(s *Scheduler) { s.onTick = fn }
}

// Scheduler is a cancellable single-deadline countdown. Each domain view owns
// its own instance.
type Scheduler struct {
	clock      Clock
	interval   time.Duration
	onBoundary func()
	onTick     func(time.Duration)

	mu       sync.Mutex
	state    State
	deadline time.Time
	gen      uint64
	stop     chan struct{}
	done     chan struct{}
}

// New creates an idle scheduler that calls onBoundary when an armed
// deadline is crossed.
func New(onBoundary func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:      RealClock{},
		interval:   DefaultInterval,
		onBoundary: onBoundary,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm starts counting toward deadline, replacing any deadline already being
// watched. A zero deadline leaves the scheduler Idle.
func (s *Scheduler) Arm(deadline time.Time) {
	s.Stop()
	if deadline.IsZero() {
		return
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateCounting
	s.deadline = deadline
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	metrics.AddActiveSchedulers(1)
	go s.run(gen, deadline, stop, done)
}

// Stop cancels the countdown and releases the ticker. It is safe to call
// repeatedly. It must not be called from the tick callback.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	wasCounting := s.state == StateCounting
	s.state = StateIdle
	s.deadline = time.Time{}
	s.gen++
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	if wasCounting {
		metrics.AddActiveSchedulers(-1)
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deadline returns the watched deadline, or the zero time when Idle.
func (s *Scheduler) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// Remaining returns the time left until the deadline, clamped at zero.
func (s *Scheduler) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCounting {
		return 0
	}
	return clamp(s.deadline.Sub(s.clock.Now()))
}

func (s *Scheduler) run(gen uint64, deadline time.Time, stop, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	if s.check(gen, deadline) {
		return
	}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if s.check(gen, deadline) {
				return
			}
		}
	}
}

// check recomputes the remaining time and fires the boundary if it has been
// crossed. It reports whether the countdown is over.
func (s *Scheduler) check(gen uint64, deadline time.Time) bool {
	remaining := deadline.Sub(s.clock.Now())
	if s.onTick != nil {
		s.onTick(clamp(remaining))
	}
	if remaining > 0 {
		return false
	}

	s.mu.Lock()
	if s.gen != gen {
		// Stopped or re-armed while this tick was in flight.
		s.mu.Unlock()
		return true
	}
	s.state = StateIdle
	s.deadline = time.Time{}
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	metrics.AddActiveSchedulers(-1)
	metrics.RecordBoundaryCrossed()
	if s.onBoundary != nil {
		s.onBoundary()
	}
	return true
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
