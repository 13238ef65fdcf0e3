// cmd/plcpoll/runtime.go
package main

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/tamzrod/plcpoll/internal/config"
	"github.com/tamzrod/plcpoll/internal/poller"
	"github.com/tamzrod/plcpoll/internal/pool"
	"github.com/tamzrod/plcpoll/internal/status"
	"github.com/tamzrod/plcpoll/internal/writer"
)

// connection is one pooled scheduler and the endpoints sharing it.
type connection struct {
	key       pool.EndpointKey
	sched     *poller.Scheduler
	endpoints []*endpoint
	closed    chan struct{}
}

type endpoint struct {
	id       string
	key      pool.EndpointKey
	sched    *poller.Scheduler
	tracker  *status.Tracker
	statusOn bool
	log      *logiface.Logger[logiface.Event]
}

type runtime struct {
	endpoints []*endpoint
	conns     []*connection
}

// build acquires one scheduler per endpoint and wires items, mirrors and
// status. Nothing is started yet.
func build(ctx context.Context, cfg *config.Config, p *pool.Pool, log *logiface.Logger[logiface.Event]) (*runtime, error) {
	rt := &runtime{}
	byKey := make(map[pool.EndpointKey]*connection)
	targets := make(map[string]writer.Target)

	// ---- pass 1: acquire ----
	for _, e := range cfg.Endpoints {
		key, err := pool.KeyOf(e)
		if err != nil {
			return nil, err
		}

		s, err := p.Acquire(key,
			pool.WithName(e.ID),
			pool.WithPeriod(time.Duration(e.Poll.IntervalMs)*time.Millisecond),
		)
		if err != nil {
			return nil, err
		}

		ep := &endpoint{
			id:    e.ID,
			key:   key,
			sched: s,
			log:   log.Clone().Str("endpoint", e.ID).Logger(),
		}
		rt.endpoints = append(rt.endpoints, ep)
		targets[e.ID] = s

		c, ok := byKey[key]
		if !ok {
			c = &connection{key: key, sched: s, closed: make(chan struct{})}
			byKey[key] = c
			rt.conns = append(rt.conns, c)
		} else if want := time.Duration(e.Poll.IntervalMs) * time.Millisecond; want != s.Period() {
			ep.log.Warning().
				Dur("configured", want).
				Dur("effective", s.Period()).
				Log("shared connection keeps the first poll interval")
		}
		c.endpoints = append(c.endpoints, ep)
	}

	// ---- pass 2: writers + items ----
	for i, e := range cfg.Endpoints {
		ep := rt.endpoints[i]

		plan, err := writer.BuildPlan(e)
		if err != nil {
			return nil, err
		}
		mirror := writer.New(plan, targets)

		statusWriter, statusOn := writer.NewDeviceStatusWriter(plan, targets)
		ep.statusOn = statusOn

		name := e.DeviceName
		if name == "" {
			name = e.ID
		}
		ep.tracker = status.NewTracker(name, func(snap status.Snapshot) {
			ep.log.Debug().
				Int("health", int(snap.Health)).
				Int("last_error", int(snap.LastErrorCode)).
				Int("seconds_in_error", int(snap.SecondsInError)).
				Log("status changed")
			if !statusOn {
				return
			}
			if err := statusWriter.WriteStatus(snap); err != nil {
				ep.log.Debug().Err(err).Log("status write failed")
			}
		})

		for _, it := range e.Items {
			key, err := it.Key()
			if err != nil {
				return nil, err
			}
			label := it.Name
			if label == "" {
				label = key.String()
			}

			ep.sched.AddItemWithErrorHandler(key,
				func(data []byte) {
					ep.log.Debug().
						Str("item", label).
						Str("value", hex.EncodeToString(data)).
						Log("read")
					if err := mirror.Write(key, data); err != nil {
						ep.log.Warning().Str("item", label).Err(err).Log("mirror write failed")
					}
				},
				func(err *poller.ProtocolError) {
					ep.log.Warning().
						Str("item", label).
						Int("code", int(err.Code())).
						Err(err).
						Log("item rejected by device")
				},
			)
		}

		go ep.tracker.Run(ctx)
	}

	// ---- per connection listeners ----
	for _, c := range rt.conns {
		c.wire(log)
	}

	return rt, nil
}

// wire fans scheduler events out to every endpoint sharing the connection.
func (c *connection) wire(log *logiface.Logger[logiface.Event]) {
	var once sync.Once

	c.sched.SetCycleListener(func(ce *poller.ConnectivityError) {
		for _, ep := range c.endpoints {
			if ce == nil {
				ep.tracker.Observe(nil)
			} else {
				ep.tracker.Observe(ce)
			}
		}
	})

	// also fires for failed writes, which no cycle reports
	c.sched.SetExceptionHandler(func(ce *poller.ConnectivityError) {
		for _, ep := range c.endpoints {
			ep.tracker.Observe(ce)
		}
	})

	c.sched.SetStateListener(func(st poller.State) {
		log.Info().
			Stringer("connection", c.key).
			Stringer("state", st).
			Log("state changed")

		switch st {
		case poller.StateActive:
			// identity re-assert: the first status write is always the full block
			for _, ep := range c.endpoints {
				if ep.statusOn {
					ep.tracker.Resend()
				}
			}
		case poller.StateClosed:
			once.Do(func() { close(c.closed) })
		}
	})
}

func (rt *runtime) start(ctx context.Context) {
	for _, c := range rt.conns {
		go c.sched.Run(ctx)
	}
}

// release gives back every reference taken by build.
func (rt *runtime) release(p *pool.Pool) {
	for _, ep := range rt.endpoints {
		p.Release(ep.key)
	}
}

// wait blocks until every connection reached Closed or timeout elapsed.
func (rt *runtime) wait(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for _, c := range rt.conns {
		select {
		case <-c.closed:
		case <-deadline:
			return false
		}
	}
	return true
}
