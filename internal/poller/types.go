// internal/poller/types.go
package poller

import (
	"fmt"
	"strings"
)

// Area is a memory area kind on the controller.
// Values are the S7 area codes.
type Area uint8

const (
	AreaCounters  Area = 0x1C
	AreaTimers    Area = 0x1D
	AreaInputs    Area = 0x81
	AreaOutputs   Area = 0x82
	AreaFlags     Area = 0x83
	AreaDataBlock Area = 0x84
)

func (a Area) String() string {
	switch a {
	case AreaCounters:
		return "C"
	case AreaTimers:
		return "T"
	case AreaInputs:
		return "I"
	case AreaOutputs:
		return "Q"
	case AreaFlags:
		return "M"
	case AreaDataBlock:
		return "DB"
	default:
		return fmt.Sprintf("Area(0x%02x)", uint8(a))
	}
}

// ParseArea accepts the short mnemonics used in config files (DB, I, Q, M, C, T)
// and a few long aliases.
func ParseArea(s string) (Area, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DB", "DATABLOCK":
		return AreaDataBlock, nil
	case "I", "E", "INPUTS":
		return AreaInputs, nil
	case "Q", "A", "OUTPUTS":
		return AreaOutputs, nil
	case "M", "F", "FLAGS":
		return AreaFlags, nil
	case "C", "Z", "COUNTERS":
		return AreaCounters, nil
	case "T", "TIMERS":
		return AreaTimers, nil
	}
	return 0, fmt.Errorf("poller: unknown area %q", s)
}

// ItemKey identifies one polled/written region.
// Geometry only: no semantics.
type ItemKey struct {
	Area       Area
	AreaNumber int
	Length     int
	Offset     int
}

func (k ItemKey) String() string {
	if k.Area == AreaDataBlock {
		return fmt.Sprintf("DB%d[%d:%d]", k.AreaNumber, k.Offset, k.Offset+k.Length)
	}
	return fmt.Sprintf("%s[%d:%d]", k.Area, k.Offset, k.Offset+k.Length)
}

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateActive:
		return "Active"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Connection is the transport capability the scheduler drives.
// Read and Write report device-level faults as *ProtocolError; any other
// error is treated as a transport fault.
type Connection interface {
	Read(area Area, areaNumber, length, offset int) ([]byte, error)
	Write(area Area, areaNumber, offset int, data []byte) error
	Close() error
}

// ConnectFunc establishes a new Connection. ONE attempt per call.
type ConnectFunc func() (Connection, error)

type (
	// ResultFunc receives the bytes read for one item.
	ResultFunc func(data []byte)

	// ErrorFunc receives item-scoped read failures.
	ErrorFunc func(err *ProtocolError)

	// ExceptionFunc receives connection-scoped failures.
	ExceptionFunc func(err *ConnectivityError)

	// StateFunc observes lifecycle transitions.
	StateFunc func(state State)

	// CycleFunc observes the outcome of every read cycle.
	// err is nil for a cycle that reached the connection without transport failure.
	CycleFunc func(err *ConnectivityError)
)
