// internal/pool/pool.go
package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"

	"github.com/tamzrod/plcpoll/internal/poller"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("pool: closed")

// EndpointKey identifies one physical controller connection.
// The poll period is configuration, not identity.
type EndpointKey struct {
	Host   string
	Family poller.Family
	Rack   int
	Slot   int
	Port   int
}

func (k EndpointKey) String() string {
	return fmt.Sprintf("%s:%d/%s/r%d/s%d", k.Host, k.Port, k.Family, k.Rack, k.Slot)
}

// DialFunc connects to the endpoint behind key. ONE attempt per call.
type DialFunc func(key EndpointKey) (poller.Connection, error)

type entry struct {
	sched *poller.Scheduler
	refs  int
}

// Pool shares one Scheduler per EndpointKey between consumers.
// The entry is created on first Acquire and closed on last Release.
type Pool struct {
	dial    DialFunc
	log     *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	opts    []poller.Option

	mu      sync.Mutex
	entries map[EndpointKey]*entry
	closed  bool
}

// Option configures a Pool.
type Option func(p *Pool)

func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return func(p *Pool) { p.log = l }
}

// WithLogLimiter is shared by every scheduler the pool creates.
func WithLogLimiter(l *catrate.Limiter) Option {
	return func(p *Pool) { p.limiter = l }
}

// WithSchedulerOptions are applied to every scheduler the pool creates.
func WithSchedulerOptions(opts ...poller.Option) Option {
	return func(p *Pool) { p.opts = append(p.opts, opts...) }
}

// AcquireOption configures the scheduler created by Acquire.
// It is ignored when the entry already exists.
type AcquireOption func(c *acquireConfig)

type acquireConfig struct {
	name    string
	period  time.Duration
	connect poller.ConnectFunc
}

// WithPeriod sets the poll period of a newly created scheduler.
func WithPeriod(d time.Duration) AcquireOption {
	return func(c *acquireConfig) { c.period = d }
}

// WithName sets the scheduler label used in logs. Defaults to the key.
func WithName(name string) AcquireOption {
	return func(c *acquireConfig) { c.name = name }
}

// WithConnect replaces the pool's DialFunc for a newly created scheduler.
func WithConnect(fn poller.ConnectFunc) AcquireOption {
	return func(c *acquireConfig) { c.connect = fn }
}

// New creates an empty pool.
func New(dial DialFunc, opts ...Option) (*Pool, error) {
	if dial == nil {
		return nil, errors.New("pool: dial func required")
	}
	p := &Pool{
		dial:    dial,
		entries: make(map[EndpointKey]*entry),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Acquire returns the scheduler for key, creating an Idle one if needed.
// Every successful Acquire must be paired with one Release.
func (p *Pool) Acquire(key EndpointKey, opts ...AcquireOption) (*poller.Scheduler, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if e, ok := p.entries[key]; ok {
		e.refs++
		p.log.Debug().
			Stringer("endpoint", key).
			Int("refs", e.refs).
			Log("pool: shared endpoint acquired")
		return e.sched, nil
	}

	c := acquireConfig{name: key.String()}
	for _, o := range opts {
		o(&c)
	}
	if c.connect == nil {
		dial := p.dial
		c.connect = func() (poller.Connection, error) { return dial(key) }
	}

	sopts := make([]poller.Option, 0, len(p.opts)+2)
	sopts = append(sopts, poller.WithLogger(p.log), poller.WithLogLimiter(p.limiter))
	sopts = append(sopts, p.opts...)

	s, err := poller.New(poller.Config{Name: c.name, Period: c.period}, c.connect, sopts...)
	if err != nil {
		return nil, fmt.Errorf("pool: endpoint %s: %w", key, err)
	}

	p.entries[key] = &entry{sched: s, refs: 1}
	p.log.Info().
		Stringer("endpoint", key).
		Str("scheduler", s.ID().String()).
		Dur("period", s.Period()).
		Log("pool: endpoint created")
	return s, nil
}

// Release drops one reference. The last Release closes the scheduler.
// Unknown keys are ignored.
func (p *Pool) Release(key EndpointKey) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.entries, key)
	p.mu.Unlock()

	p.closeEntry(key, e)
}

// Refs returns the live reference count of key, 0 if absent.
func (p *Pool) Refs(key EndpointKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live endpoints.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close closes every endpoint regardless of references. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	entries := p.entries
	p.entries = make(map[EndpointKey]*entry)
	p.mu.Unlock()

	for key, e := range entries {
		p.closeEntry(key, e)
	}
}

// closeEntry runs without p.mu: Close may notify listeners synchronously.
func (p *Pool) closeEntry(key EndpointKey, e *entry) {
	if err := e.sched.Close(); err != nil {
		p.log.Err().
			Stringer("endpoint", key).
			Err(err).
			Log("pool: error while closing endpoint")
		return
	}
	p.log.Info().
		Stringer("endpoint", key).
		Log("pool: endpoint released")
}
