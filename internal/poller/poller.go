// internal/poller/poller.go
package poller

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// DefaultPeriod is used when Config.Period is zero.
const DefaultPeriod = time.Second

// Config is the minimal runtime config the scheduler needs.
type Config struct {
	Name   string
	Period time.Duration
}

// drain is the deactivation in flight, if any.
// Callers keep observing Active until the drain completes.
type drain uint8

const (
	drainNone drain = iota
	drainToIdle
	drainToClosed
	drainRestart
)

// Scheduler owns one logical connection to one controller, polls the
// registered items on a fixed period and serializes writes onto the same
// Timeline as the reads.
type Scheduler struct {
	name     string
	id       uuid.UUID
	log      *logiface.Logger[logiface.Event]
	limiter  *catrate.Limiter
	timeline Timeline
	conn     *lifecycle
	items    *registry

	// state is written under mu, read lock-free by State.
	state atomic.Int32

	// mu serializes lifecycle transitions and guards the fields below.
	mu        sync.Mutex
	period    time.Duration
	pollTask  Task
	drain     drain
	drainTask Task
	onState   StateFunc
	onExc     ExceptionFunc
	onCycle   CycleFunc
}

// Option configures a Scheduler.
type Option func(s *Scheduler)

// WithTimeline replaces the default single-worker Executor.
func WithTimeline(t Timeline) Option {
	return func(s *Scheduler) { s.timeline = t }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithLogLimiter rate limits repeated connectivity failure logs.
// Consumer notifications are never limited.
func WithLogLimiter(l *catrate.Limiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// New creates an Idle scheduler. connect is called lazily, ONE attempt per call.
func New(cfg Config, connect ConnectFunc, opts ...Option) (*Scheduler, error) {
	if cfg.Name == "" {
		return nil, errors.New("poller: name required")
	}
	if cfg.Period < 0 {
		return nil, errors.New("poller: period must be > 0")
	}
	if connect == nil {
		return nil, errors.New("poller: connect func required")
	}
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}

	s := &Scheduler{
		name:   cfg.Name,
		id:     uuid.New(),
		period: cfg.Period,
		items:  newRegistry(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.timeline == nil {
		s.timeline = NewExecutor(s.log)
	}
	s.conn = newLifecycle(cfg.Name, connect, s.log)
	s.state.Store(int32(StateIdle))
	return s, nil
}

// Name returns the configured endpoint label.
func (s *Scheduler) Name() string { return s.name }

// ID is unique per scheduler instance.
func (s *Scheduler) ID() uuid.UUID { return s.id }

// State returns the externally visible lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// SetStateListener registers fn for state changes; nil removes it.
func (s *Scheduler) SetStateListener(fn StateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

// StateListener returns the registered state listener, or nil.
func (s *Scheduler) StateListener() StateFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onState
}

// SetExceptionHandler registers fn for connection-scoped failures; nil removes it.
func (s *Scheduler) SetExceptionHandler(fn ExceptionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExc = fn
}

// RemoveExceptionHandler is SetExceptionHandler(nil).
func (s *Scheduler) RemoveExceptionHandler() { s.SetExceptionHandler(nil) }

// SetCycleListener registers fn, called after every read cycle.
func (s *Scheduler) SetCycleListener(fn CycleFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCycle = fn
}

// AddItem registers (or replaces) an item. Safe at any time, including
// while a read cycle is running.
func (s *Scheduler) AddItem(key ItemKey, onResult ResultFunc) {
	s.items.register(key, onResult, nil)
}

// AddItemWithErrorHandler is AddItem with an item-scoped error callback.
func (s *Scheduler) AddItemWithErrorHandler(key ItemKey, onResult ResultFunc, onError ErrorFunc) {
	s.items.register(key, onResult, onError)
}

// RemoveItem is a no-op for unknown items.
func (s *Scheduler) RemoveItem(key ItemKey) {
	s.items.unregister(key)
}

// Items returns the number of registered items.
func (s *Scheduler) Items() int { return s.items.len() }

// Period returns the current poll period.
func (s *Scheduler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// SetPeriod replaces the repeating read task if one is active,
// otherwise the period takes effect on the next Start.
func (s *Scheduler) SetPeriod(period time.Duration) error {
	if period <= 0 {
		return errors.New("poller: period must be > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if period == s.period {
		return nil
	}
	s.period = period
	if s.pollTask != nil {
		s.pollTask.Cancel()
		s.pollTask = s.timeline.Every(period, s.poll)
	}
	s.log.Debug().
		Str("endpoint", s.name).
		Dur("period", period).
		Log("poll period changed")
	return nil
}

// ---- lifecycle ----

// Start activates polling. No-op unless Idle, except that a Start arriving
// while a Stop is still draining cancels that drain and keeps the
// connection alive.
func (s *Scheduler) Start() {
	var changed []State

	s.mu.Lock()
	switch {
	case s.State() == StateIdle:
		s.log.Debug().Str("endpoint", s.name).Log("start")
		s.pollTask = s.timeline.Every(s.period, s.poll)
		changed = s.setStateLocked(StateActive)

	case s.State() == StateActive && s.drain == drainToIdle:
		if s.drainTask != nil && s.drainTask.Cancel() {
			s.log.Debug().Str("endpoint", s.name).Log("start: pending stop cancelled")
			s.drain = drainNone
			s.drainTask = nil
			s.pollTask = s.timeline.Every(s.period, s.poll)
		} else {
			// drain already running, it resumes polling when done
			s.drain = drainRestart
		}
	}
	listener := s.onState
	s.mu.Unlock()

	s.notify(listener, changed)
}

// Stop deactivates polling. The poll task is cancelled immediately; closing
// the connection and the transition back to Idle happen on the Timeline.
// A Stop after a Start that is waiting on a running drain withdraws that Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateActive && s.drain == drainRestart {
		s.log.Debug().Str("endpoint", s.name).Log("stop: pending restart withdrawn")
		s.drain = drainToIdle
		return
	}
	s.stopLocked(drainToIdle)
}

func (s *Scheduler) stopLocked(target drain) bool {
	if s.State() != StateActive || s.drain != drainNone {
		return false
	}
	s.log.Debug().Str("endpoint", s.name).Log("stop")

	if s.pollTask != nil {
		s.pollTask.Cancel()
		s.pollTask = nil
	}
	s.drain = target
	s.drainTask = s.timeline.Submit(s.deactivate)
	return true
}

// Close is terminal and idempotent. An Active scheduler is stopped first
// and reaches Closed once the drain completed.
func (s *Scheduler) Close() error {
	var changed []State

	s.mu.Lock()
	switch {
	case s.State() == StateClosed:
	case s.drain != drainNone:
		s.drain = drainToClosed
	case s.stopLocked(drainToClosed):
		s.log.Debug().Str("endpoint", s.name).Log("close requested while active")
	default:
		s.log.Debug().Str("endpoint", s.name).Log("close")
		s.timeline.Shutdown()
		changed = s.setStateLocked(StateClosed)
	}
	listener := s.onState
	s.mu.Unlock()

	s.notify(listener, changed)
	return nil
}

// deactivate is the drain; it runs on the Timeline exactly once per Stop.
func (s *Scheduler) deactivate() {
	s.conn.teardown()

	var changed []State

	s.mu.Lock()
	target := s.drain
	s.drain = drainNone
	s.drainTask = nil

	switch target {
	case drainToClosed:
		s.timeline.Shutdown()
		changed = s.setStateLocked(StateClosed)
	case drainRestart:
		s.pollTask = s.timeline.Every(s.period, s.poll)
	default:
		changed = s.setStateLocked(StateIdle)
	}
	listener := s.onState
	s.mu.Unlock()

	s.log.Debug().
		Str("endpoint", s.name).
		Stringer("state", s.State()).
		Log("connection deactivated")
	s.notify(listener, changed)
}

// setStateLocked returns the states to report once s.mu is released.
func (s *Scheduler) setStateLocked(st State) []State {
	if State(s.state.Swap(int32(st))) == st {
		return nil
	}
	return []State{st}
}

func (s *Scheduler) notify(listener StateFunc, changed []State) {
	if listener == nil {
		return
	}
	for _, st := range changed {
		s.guard("state listener", func() { listener(st) })
	}
}

// guard runs a consumer callback; a panic is logged, never propagated.
func (s *Scheduler) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Err().
				Str("endpoint", s.name).
				Str("callback", what).
				Any("panic", r).
				Log("error while calling consumer")
		}
	}()
	fn()
}
