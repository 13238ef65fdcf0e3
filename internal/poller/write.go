// internal/poller/write.go
package poller

import (
	"context"
	"sync"
)

// WriteHandle is the completion handle of one asynchronous write.
//
// Cancellation is best-effort: Cancel only succeeds while the write has not
// been dispatched. Once dispatch began the write may or may not have reached
// the device.
type WriteHandle struct {
	mu      sync.Mutex
	task    Task
	started bool
	done    chan struct{}
	err     error
}

func newWriteHandle() *WriteHandle {
	return &WriteHandle{done: make(chan struct{})}
}

// failedWrite returns a handle that is already complete.
func failedWrite(err error) *WriteHandle {
	h := newWriteHandle()
	h.finish(err)
	return h
}

// Done is closed when the write completed, failed or was cancelled.
func (h *WriteHandle) Done() <-chan struct{} { return h.done }

// Err returns the outcome; nil until Done is closed, and nil on success.
func (h *WriteHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until completion or until ctx is done.
func (h *WriteHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel prevents dispatch if the write has not started yet.
func (h *WriteHandle) Cancel() bool {
	h.mu.Lock()
	if h.started || h.isDone() {
		h.mu.Unlock()
		return false
	}
	h.err = ErrCancelled
	close(h.done)
	t := h.task
	h.mu.Unlock()

	if t != nil {
		t.Cancel()
	}
	return true
}

func (h *WriteHandle) setTask(t Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task = t
}

// begin marks the write as dispatched; false if it was cancelled first.
func (h *WriteHandle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isDone() {
		return false
	}
	h.started = true
	return true
}

func (h *WriteHandle) finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isDone() {
		return
	}
	h.err = err
	close(h.done)
}

// isDone is called with h.mu held.
func (h *WriteHandle) isDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
