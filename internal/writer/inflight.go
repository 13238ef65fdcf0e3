// internal/writer/inflight.go
package writer

import (
	"sync"

	"github.com/tamzrod/plcpoll/internal/poller"
)

// inflight tracks dispatched writes without waiting on them. Writers are
// called from read callbacks on the target's own timeline, so blocking on
// a handle there would never complete.
type inflight struct {
	mu      sync.Mutex
	handles []*poller.WriteHandle
}

func (f *inflight) add(h *poller.WriteHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles = append(f.handles, h)
}

// reap forgets completed writes and returns the failures among them.
func (f *inflight) reap() []error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	kept := f.handles[:0]
	for _, h := range f.handles {
		select {
		case <-h.Done():
			if err := h.Err(); err != nil {
				errs = append(errs, err)
			}
		default:
			kept = append(kept, h)
		}
	}
	clear(f.handles[len(kept):])
	f.handles = kept
	return errs
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}
