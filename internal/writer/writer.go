// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"

	"github.com/tamzrod/plcpoll/internal/poller"
)

type mirrorWriter struct {
	routes   map[poller.ItemKey][]MirrorDest
	targets  map[string]Target
	inflight inflight
}

// New builds the data writer for plan. targets is keyed by endpoint id.
func New(plan Plan, targets map[string]Target) Writer {
	w := &mirrorWriter{
		routes:  make(map[poller.ItemKey][]MirrorDest, len(plan.Routes)),
		targets: targets,
	}
	for _, r := range plan.Routes {
		w.routes[r.Item] = append(w.routes[r.Item], r.Dests...)
	}
	return w
}

// Write schedules one write per destination of item and returns without
// waiting. Failures surface on a later call, once the handle completed.
func (w *mirrorWriter) Write(item poller.ItemKey, data []byte) error {
	var errs []error

	for _, err := range w.inflight.reap() {
		errs = append(errs, fmt.Errorf("writer: previous write: %w", err))
	}

	for _, d := range w.routes[item] {
		tgt := w.targets[d.Endpoint]
		if tgt == nil {
			errs = append(errs, fmt.Errorf("writer: missing target for endpoint %s", d.Endpoint))
			continue
		}
		h := tgt.WriteArea(d.Area, d.AreaNumber, d.Offset, data)
		w.inflight.add(h)
	}

	// ErrNotActive and friends complete synchronously
	for _, err := range w.inflight.reap() {
		errs = append(errs, fmt.Errorf("writer: item %s: %w", item, err))
	}

	return errors.Join(errs...)
}
