// internal/poller/errors.go
package poller

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned for operations that require an Active scheduler.
	ErrNotActive = errors.New("poller: scheduler not active")

	// ErrClosed is returned once the scheduler reached its terminal state.
	ErrClosed = errors.New("poller: scheduler closed")

	// ErrCancelled completes a write handle cancelled before dispatch.
	ErrCancelled = errors.New("poller: write cancelled")

	// ErrNoConnection is wrapped when the connect factory yields nothing.
	ErrNoConnection = errors.New("poller: connection is broken")
)

// ProtocolError is a device-level rejection of one item operation.
// It never affects other items or the connection.
type ProtocolError struct {
	Key  ItemKey
	Op   string
	code uint16
	Err  error
}

// NewProtocolError builds a ProtocolError carrying a device error code.
func NewProtocolError(op string, code uint16, err error) *ProtocolError {
	return &ProtocolError{Op: op, code: code, Err: err}
}

func (e *ProtocolError) Error() string {
	var zero ItemKey
	if e.Key == zero {
		return fmt.Sprintf("poller: %s: protocol error (code=%d): %v", e.Op, e.code, e.Err)
	}
	return fmt.Sprintf("poller: %s %s: protocol error (code=%d): %v", e.Op, e.Key, e.code, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Code returns the raw device error code, 0 if unknown.
func (e *ProtocolError) Code() uint16 { return e.code }

// ConnectivityError is a transport-level failure. The live connection is
// always discarded when one is observed.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("poller: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// classify splits a Connection error into the item-scoped or the
// connection-scoped class.
func classify(op string, key ItemKey, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		if pe.Key == (ItemKey{}) {
			cp := *pe
			cp.Key = key
			if cp.Op == "" {
				cp.Op = op
			}
			return &cp
		}
		return pe
	}
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnectivityError{Op: op, Err: err}
}
