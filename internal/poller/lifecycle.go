// internal/poller/lifecycle.go
package poller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeycumines/logiface"
)

// lifecycle owns at most one live Connection.
// Connection is reused while healthy.
// On transport death the connection is discarded and the factory is used
// again by a later operation. No retries, no loops.
type lifecycle struct {
	mu      sync.Mutex
	connect ConnectFunc
	conn    Connection
	log     *logiface.Logger[logiface.Event]
	name    string
}

func newLifecycle(name string, connect ConnectFunc, log *logiface.Logger[logiface.Event]) *lifecycle {
	return &lifecycle{name: name, connect: connect, log: log}
}

// ensureLocked returns the live connection, connecting if needed.
// Caller holds l.mu.
func (l *lifecycle) ensureLocked() (Connection, error) {
	if l.conn != nil {
		return l.conn, nil
	}

	c, err := l.connect()
	if err == nil && c == nil {
		err = ErrNoConnection
	}
	if err != nil {
		// reported by the caller, which rate limits it
		return nil, &ConnectivityError{Op: "connect", Err: err}
	}

	l.log.Debug().Str("endpoint", l.name).Log("connection established")
	l.conn = c
	return c, nil
}

// do runs fn against the live connection under the lifecycle lock, so no
// other caller can close the connection fn is using.
// A *ConnectivityError returned by fn tears the connection down.
func (l *lifecycle) do(fn func(c Connection) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.ensureLocked()
	if err != nil {
		return err
	}

	err = fn(c)

	var ce *ConnectivityError
	if errors.As(err, &ce) {
		l.teardownLocked()
	}
	return err
}

// connected reports whether a live connection is currently held.
func (l *lifecycle) connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// teardown closes the live connection, best-effort. Idempotent.
func (l *lifecycle) teardown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()
}

func (l *lifecycle) teardownLocked() {
	if l.conn == nil {
		return
	}
	c := l.conn
	l.conn = nil

	if err := safeClose(c); err != nil {
		l.log.Err().
			Str("endpoint", l.name).
			Err(err).
			Log("error while closing connection")
		return
	}
	l.log.Debug().Str("endpoint", l.name).Log("connection closed")
}

// safeClose shields the scheduler from a panicking Close.
func safeClose(c Connection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poller: close panicked: %v", r)
		}
	}()
	return c.Close()
}
