// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/plcpoll/internal/poller"
	"github.com/tamzrod/plcpoll/internal/status"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// DeviceStatusWriter writes the status block through a Target.
type DeviceStatusWriter struct {
	mu   sync.Mutex
	plan StatusPlan
	dst  Target

	needFull bool
	last     status.Snapshot
	inflight inflight
}

// NewDeviceStatusWriter builds a status writer if status is enabled for the endpoint.
// If plan.Status is nil, status is disabled.
func NewDeviceStatusWriter(plan Plan, targets map[string]Target) (*DeviceStatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}
	sp := *plan.Status
	dst := targets[sp.Endpoint]
	if dst == nil {
		return nil, false
	}

	return &DeviceStatusWriter{
		plan:     sp,
		dst:      dst,
		needFull: true, // full re-assert on first write
		last: status.Snapshot{
			Health: status.HealthUnknown,
		},
	}, true
}

// WriteStatus delivers a device status snapshot into status memory.
// Once any write is known to have failed, the next call re-asserts the full block.
func (sw *DeviceStatusWriter) WriteStatus(s status.Snapshot) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	var errs []error
	for _, err := range sw.inflight.reap() {
		sw.needFull = true
		errs = append(errs, fmt.Errorf("previous write: %w", err))
	}

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		sw.send(0, status.Bytes(status.Encode(s)))
		sw.needFull = false
		sw.last = s
	} else {
		// Slot 0 - health_code
		if sw.last.Health != s.Health {
			sw.send(status.SlotHealthCode, status.Bytes([]uint16{s.Health}))
			sw.last.Health = s.Health
		}
		// Slot 1 - last_error_code
		if sw.last.LastErrorCode != s.LastErrorCode {
			sw.send(status.SlotLastErrorCode, status.Bytes([]uint16{s.LastErrorCode}))
			sw.last.LastErrorCode = s.LastErrorCode
		}
		// Slot 2 - seconds_in_error
		if sw.last.SecondsInError != s.SecondsInError {
			sw.send(status.SlotSecondsInError, status.Bytes([]uint16{s.SecondsInError}))
			sw.last.SecondsInError = s.SecondsInError
		}
	}

	for _, err := range sw.inflight.reap() {
		// Any failure introduces doubt: re-assert on next write.
		sw.needFull = true
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("status writer: %w", errors.Join(errs...))
	}
	return nil
}

func (sw *DeviceStatusWriter) send(slot int, data []byte) {
	h := sw.dst.WriteArea(poller.AreaDataBlock, sw.plan.AreaNumber, sw.plan.Offset+slot*2, data)
	sw.inflight.add(h)
}
