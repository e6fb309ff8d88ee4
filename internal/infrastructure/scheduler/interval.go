package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Interval triggers a job immediately and then once per configured
// interval. The job runs synchronously in the loop, so two runs never
// overlap; the first job error stops the loop and is returned.
type Interval struct {
	interval time.Duration
	logger   *slog.Logger
}

func New(interval time.Duration, logger *slog.Logger) *Interval {
	return &Interval{interval: interval, logger: logger}
}

// Run blocks until the context is cancelled or the job fails.
func (s *Interval) Run(ctx context.Context, job func(context.Context) error) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		started := time.Now()
		if err := job(ctx); err != nil {
			return err
		}
		s.logger.Info("run finished", "duration", time.Since(started).Round(time.Millisecond))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
