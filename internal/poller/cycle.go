// internal/poller/cycle.go
package poller

import (
	"bytes"
	"errors"
	"time"

	"github.com/google/uuid"
)

// poll performs exactly one read cycle. It runs on the Timeline.
//
// Per-item protocol errors go to that item's error callback and the cycle
// continues. A transport error aborts the rest of the cycle and discards
// the connection; the next tick reconnects. Nothing here ends the scheduler.
func (s *Scheduler) poll() {
	err := s.conn.do(s.readAll)

	var ce *ConnectivityError
	if errors.As(err, &ce) {
		s.reportConnectivity(ce)
	}

	s.mu.Lock()
	onCycle := s.onCycle
	s.mu.Unlock()
	if onCycle != nil {
		s.guard("cycle listener", func() { onCycle(ce) })
	}
}

func (s *Scheduler) readAll(c Connection) error {
	var fatal error

	s.items.forEach(func(key ItemKey, reg registration) bool {
		data, err := c.Read(key.Area, key.AreaNumber, key.Length, key.Offset)
		err = classify("read", key, err)

		var pe *ProtocolError
		switch {
		case err == nil:
			if reg.onResult != nil {
				s.guard("result", func() { reg.onResult(data) })
			}
			return true

		case errors.As(err, &pe):
			s.log.Warning().
				Str("endpoint", s.name).
				Stringer("item", key).
				Err(pe).
				Log("item read error")
			if reg.onError != nil {
				s.guard("item error", func() { reg.onError(pe) })
			}
			return true

		default:
			fatal = err
			return false
		}
	})

	return fatal
}

// reportConnectivity logs (rate limited) and notifies the exception handler
// exactly once per failure.
func (s *Scheduler) reportConnectivity(ce *ConnectivityError) {
	if next, ok := s.limiter.Allow(limitCategory{id: s.id, op: ce.Op}); ok {
		s.log.Err().
			Str("endpoint", s.name).
			Str("scheduler", s.id.String()).
			Str("op", ce.Op).
			Err(ce.Err).
			Log("connectivity error, retry next poll")
	} else if !next.IsZero() {
		s.log.Trace().
			Str("endpoint", s.name).
			Dur("suppressed_for", time.Until(next)).
			Log("connectivity error log suppressed")
	}

	s.mu.Lock()
	onExc := s.onExc
	s.mu.Unlock()
	if onExc != nil {
		s.guard("exception handler", func() { onExc(ce) })
	}
}

type limitCategory struct {
	id uuid.UUID
	op string
}

// ---- writes ----

// Write schedules data to be written to key on the Timeline, serialized
// with read cycles. It never blocks and never panics: when the scheduler is
// not Active the returned handle is already complete with ErrNotActive
// (or ErrClosed once Close was requested).
func (s *Scheduler) Write(key ItemKey, data []byte) *WriteHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.State() == StateClosed || s.drain == drainToClosed:
		return failedWrite(ErrClosed)
	case s.State() != StateActive || s.drain != drainNone:
		return failedWrite(ErrNotActive)
	}

	s.log.Debug().
		Str("endpoint", s.name).
		Stringer("item", key).
		Int("bytes", len(data)).
		Log("write scheduled")

	payload := bytes.Clone(data)
	h := newWriteHandle()
	h.setTask(s.timeline.Submit(func() {
		if !h.begin() {
			return
		}
		h.finish(s.doWrite(key, payload))
	}))
	return h
}

// WriteArea derives the item length from data.
func (s *Scheduler) WriteArea(area Area, areaNumber, offset int, data []byte) *WriteHandle {
	return s.Write(ItemKey{Area: area, AreaNumber: areaNumber, Length: len(data), Offset: offset}, data)
}

func (s *Scheduler) doWrite(key ItemKey, data []byte) error {
	err := s.conn.do(func(c Connection) error {
		return classify("write", key, c.Write(key.Area, key.AreaNumber, key.Offset, data))
	})

	var ce *ConnectivityError
	if errors.As(err, &ce) {
		s.reportConnectivity(ce)
	}
	return err
}
