// internal/poller/timeline.go
package poller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Timeline is a serialized execution context. Tasks submitted to one
// Timeline never run concurrently with each other and run in submission order.
type Timeline interface {
	// Every schedules fn repeatedly. The first run is immediate.
	// A run is never queued while the previous one is still pending.
	Every(period time.Duration, fn func()) Task

	// Submit schedules fn once, immediately.
	Submit(fn func()) Task

	// Shutdown stops repeating tasks and rejects new work. Work already
	// queued still runs. It never blocks.
	Shutdown()
}

// Task is a handle to scheduled work.
type Task interface {
	// Cancel prevents future runs. For one-shot tasks it reports true only
	// if the task had not started. A running task is never interrupted.
	Cancel() bool
}

// Executor is the default Timeline: one worker goroutine draining a FIFO.
type Executor struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*oneShot
	periodic map[*periodic]struct{}
	closed   bool
	done     chan struct{}
	log      *logiface.Logger[logiface.Event]
}

// NewExecutor starts the worker goroutine.
func NewExecutor(log *logiface.Logger[logiface.Event]) *Executor {
	e := &Executor{
		periodic: make(map[*periodic]struct{}),
		done:     make(chan struct{}),
		log:      log,
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Done is closed once the worker exited after Shutdown.
func (e *Executor) Done() <-chan struct{} { return e.done }

func (e *Executor) Submit(fn func()) Task {
	t := &oneShot{fn: fn}
	if !e.enqueue(t) {
		t.state.Store(taskCancelled)
	}
	return t
}

func (e *Executor) Every(period time.Duration, fn func()) Task {
	p := &periodic{
		exec:   e,
		period: period,
		fn:     fn,
		stop:   make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		p.cancelled.Store(true)
		return p
	}
	e.periodic[p] = struct{}{}
	e.mu.Unlock()

	p.fire()
	go p.loop()
	return p
}

func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	ps := make([]*periodic, 0, len(e.periodic))
	for p := range e.periodic {
		ps = append(ps, p)
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, p := range ps {
		p.Cancel()
	}
}

func (e *Executor) enqueue(t *oneShot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.queue = append(e.queue, t)
	e.cond.Signal()
	return true
}

func (e *Executor) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.execute(t)
	}
}

// execute runs one task; a panicking task must not kill the worker.
func (e *Executor) execute(t *oneShot) {
	if !t.state.CompareAndSwap(taskPending, taskRunning) {
		return
	}
	defer t.state.Store(taskDone)
	defer func() {
		if r := recover(); r != nil {
			e.log.Crit().
				Any("panic", r).
				Log("timeline task panicked")
		}
	}()
	t.fn()
}

// ---- tasks ----

const (
	taskPending int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

type oneShot struct {
	fn    func()
	state atomic.Int32
}

func (t *oneShot) Cancel() bool {
	return t.state.CompareAndSwap(taskPending, taskCancelled)
}

type periodic struct {
	exec      *Executor
	period    time.Duration
	fn        func()
	stop      chan struct{}
	cancelled atomic.Bool
	pending   atomic.Bool
}

func (p *periodic) Cancel() bool {
	if !p.cancelled.CompareAndSwap(false, true) {
		return false
	}
	close(p.stop)

	p.exec.mu.Lock()
	delete(p.exec.periodic, p)
	p.exec.mu.Unlock()
	return true
}

// fire queues one run unless the previous run has not finished.
func (p *periodic) fire() {
	if p.cancelled.Load() || !p.pending.CompareAndSwap(false, true) {
		return
	}
	ok := p.exec.enqueue(&oneShot{fn: func() {
		defer p.pending.Store(false)
		if p.cancelled.Load() {
			return
		}
		p.fn()
	}})
	if !ok {
		p.pending.Store(false)
	}
}

func (p *periodic) loop() {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.fire()
		}
	}
}
