// internal/poller/registry.go
package poller

import (
	"slices"
	"sync"
)

// registration is replaced wholesale on re-registration.
type registration struct {
	seq      uint64
	onResult ResultFunc
	onError  ErrorFunc
}

type registeredItem struct {
	key ItemKey
	reg registration
}

// registry maps items to their callbacks.
// It is the only scheduler structure mutated from arbitrary goroutines.
type registry struct {
	mu    sync.RWMutex
	seq   uint64
	items map[ItemKey]registration
}

func newRegistry() *registry {
	return &registry{items: make(map[ItemKey]registration)}
}

// register inserts or replaces. A replaced item keeps its position.
func (r *registry) register(key ItemKey, onResult ResultFunc, onError ErrorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.seq
	if prev, ok := r.items[key]; ok {
		seq = prev.seq
	} else {
		r.seq++
	}
	r.items[key] = registration{seq: seq, onResult: onResult, onError: onError}
}

func (r *registry) unregister(key ItemKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *registry) lookup(key ItemKey) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.items[key]
	return reg, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// snapshot returns the registered items in insertion order.
func (r *registry) snapshot() []registeredItem {
	r.mu.RLock()
	out := make([]registeredItem, 0, len(r.items))
	for k, reg := range r.items {
		out = append(out, registeredItem{key: k, reg: reg})
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b registeredItem) int {
		switch {
		case a.reg.seq < b.reg.seq:
			return -1
		case a.reg.seq > b.reg.seq:
			return 1
		}
		return 0
	})
	return out
}

// forEach visits a snapshot of the registry. Items removed after the
// snapshot was taken are skipped; visit sees the latest registration.
// Returning false from visit stops the iteration.
func (r *registry) forEach(visit func(key ItemKey, reg registration) bool) {
	for _, it := range r.snapshot() {
		reg, ok := r.lookup(it.key)
		if !ok {
			continue
		}
		if !visit(it.key, reg) {
			return
		}
	}
}
