// internal/status/tracker.go
package status

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Tracker owns the status snapshot of one endpoint.
//
// onChange runs with the tracker locked, so snapshots are delivered in
// order. It must not call back into the Tracker.
type Tracker struct {
	mu       sync.Mutex
	snap     Snapshot
	onChange func(Snapshot)
}

// NewTracker starts in HealthUnknown.
func NewTracker(deviceName string, onChange func(Snapshot)) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Health:     HealthUnknown,
			DeviceName: deviceName,
		},
		onChange: onChange,
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Observe records the outcome of one poll cycle (nil = OK).
func (t *Tracker) Observe(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false

	if err == nil {
		// Recovery / OK
		if t.snap.Health != HealthOK {
			t.snap.Health = HealthOK
			changed = true
		}
		if t.snap.LastErrorCode != 0 {
			t.snap.LastErrorCode = 0
			changed = true
		}
		if t.snap.SecondsInError != 0 {
			t.snap.SecondsInError = 0
			changed = true
		}
	} else {
		if t.snap.Health != HealthError {
			t.snap.Health = HealthError
			changed = true
		}
		code := ErrorCode(err)
		if t.snap.LastErrorCode != code {
			t.snap.LastErrorCode = code
			changed = true
		}
		// seconds_in_error increments on Tick only
	}

	if changed {
		t.emit()
	}
}

// Tick advances seconds_in_error while not OK. Called at 1 Hz.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Health == HealthOK || t.snap.SecondsInError >= MaxSecondsInError {
		return
	}
	t.snap.SecondsInError++
	t.emit()
}

// Run ticks once per second until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Resend delivers the current snapshot again, changed or not.
func (t *Tracker) Resend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit()
}

func (t *Tracker) emit() {
	if t.onChange != nil {
		t.onChange(t.snap)
	}
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		if c := a.Code(); c != 0 {
			return c
		}
		return 1
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return 1
}
