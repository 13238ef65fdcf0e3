package writer

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/tamzrod/plcpoll/internal/poller"
)

// ---- manual timeline ----

type queueTimeline struct {
	mu    sync.Mutex
	queue []func()
}

type noopTask struct{}

func (noopTask) Cancel() bool { return false }

func (q *queueTimeline) Every(time.Duration, func()) poller.Task { return noopTask{} }

func (q *queueTimeline) Submit(fn func()) poller.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, fn)
	return noopTask{}
}

func (q *queueTimeline) Shutdown() {}

func (q *queueTimeline) run() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		fn()
	}
}

// ---- fake connection ----

type writeCall struct {
	area       poller.Area
	areaNumber int
	offset     int
	data       []byte
}

type fakeConn struct {
	writes []writeCall
	fail   error
}

func (f *fakeConn) Read(_ poller.Area, _, length, _ int) ([]byte, error) {
	return make([]byte, length), nil
}

func (f *fakeConn) Write(area poller.Area, areaNumber, offset int, data []byte) error {
	f.writes = append(f.writes, writeCall{area, areaNumber, offset, bytes.Clone(data)})
	return f.fail
}

func (f *fakeConn) Close() error { return nil }

var errRejected = poller.NewProtocolError("write", 2, errors.New("illegal data address"))

// newTarget returns an Active scheduler whose writes run on tl.
func newTarget(conn *fakeConn) (*poller.Scheduler, *queueTimeline) {
	tl := &queueTimeline{}
	s, err := poller.New(
		poller.Config{Name: "target"},
		func() (poller.Connection, error) { return conn, nil },
		poller.WithTimeline(tl),
	)
	if err != nil {
		panic(err)
	}
	s.Start()
	return s, tl
}
