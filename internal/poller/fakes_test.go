package poller

import (
	"bytes"
	"sync"
	"time"
)

// ---- manual timeline ----

// manualTimeline captures scheduled work; tests run it by hand.
type manualTimeline struct {
	mu        sync.Mutex
	every     []*manualTask
	submitted []*manualTask
	shutdowns int
}

type manualTask struct {
	tl        *manualTimeline
	fn        func()
	period    time.Duration
	started   bool
	cancelled bool
}

func (t *manualTask) Cancel() bool {
	t.tl.mu.Lock()
	defer t.tl.mu.Unlock()
	if t.cancelled || (t.period == 0 && t.started) {
		return false
	}
	t.cancelled = true
	return true
}

func (m *manualTimeline) Every(period time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{tl: m, fn: fn, period: period}
	m.every = append(m.every, t)
	return t
}

func (m *manualTimeline) Submit(fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{tl: m, fn: fn}
	m.submitted = append(m.submitted, t)
	return t
}

func (m *manualTimeline) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
}

// tick runs every active repeating task once.
func (m *manualTimeline) tick() {
	m.mu.Lock()
	var run []*manualTask
	for _, t := range m.every {
		if !t.cancelled {
			run = append(run, t)
		}
	}
	m.mu.Unlock()

	for _, t := range run {
		t.fn()
	}
}

// runSubmitted drains the one-shot queue in order, skipping cancelled work.
func (m *manualTimeline) runSubmitted() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.submitted) == 0 {
			m.mu.Unlock()
			return n
		}
		t := m.submitted[0]
		m.submitted = m.submitted[1:]
		if t.cancelled {
			m.mu.Unlock()
			continue
		}
		t.started = true
		m.mu.Unlock()

		t.fn()
		n++
	}
}

func (m *manualTimeline) activeEvery() []*manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTask
	for _, t := range m.every {
		if !t.cancelled {
			out = append(out, t)
		}
	}
	return out
}

func (m *manualTimeline) everyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.every)
}

func (m *manualTimeline) shutdownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdowns
}

// ---- fake connection ----

type writeCall struct {
	area       Area
	areaNumber int
	offset     int
	data       []byte
}

type fakeConn struct {
	mu       sync.Mutex
	readFn   func(key ItemKey) ([]byte, error)
	writeErr error
	onClose  func()
	reads    []ItemKey
	writes   []writeCall
	closed   int
}

func (f *fakeConn) Read(area Area, areaNumber, length, offset int) ([]byte, error) {
	key := ItemKey{Area: area, AreaNumber: areaNumber, Length: length, Offset: offset}

	f.mu.Lock()
	f.reads = append(f.reads, key)
	fn := f.readFn
	f.mu.Unlock()

	if fn == nil {
		return make([]byte, length), nil
	}
	return fn(key)
}

func (f *fakeConn) Write(area Area, areaNumber, offset int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeCall{
		area:       area,
		areaNumber: areaNumber,
		offset:     offset,
		data:       bytes.Clone(data),
	})
	return f.writeErr
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed++
	fn := f.onClose
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (f *fakeConn) readKeys() []ItemKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ItemKey(nil), f.reads...)
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out the same fakeConn and counts attempts.
type fakeDialer struct {
	mu    sync.Mutex
	conn  *fakeConn
	err   error
	dials int
}

func (d *fakeDialer) connect() (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// stateRecorder collects state notifications.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
