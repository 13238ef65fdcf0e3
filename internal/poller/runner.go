// internal/poller/runner.go
package poller

import (
	"context"
)

// Run starts polling and blocks until ctx is done, then closes the scheduler
// and returns ctx.Err(). One scheduler per endpoint. No overlap. No retries
// beyond the poll period.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	if err := s.Close(); err != nil {
		return err
	}
	return ctx.Err()
}
