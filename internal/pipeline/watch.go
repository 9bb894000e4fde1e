package pipeline

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Watcher runs a pipeline cycle on a cron schedule until its context is
// canceled. Overlapping cycles are skipped, not queued.
type Watcher struct {
	schedule string
	cycle    func(ctx context.Context) error
	logger   *zap.Logger
}

// NewWatcher builds a watcher around a cycle function. The schedule uses
// standard cron syntax, e.g. "*/30 * * * *" or "@every 6h".
func NewWatcher(schedule string, cycle func(ctx context.Context) error, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{schedule: schedule, cycle: cycle, logger: logger}
}

// Run blocks until ctx is canceled, firing one cycle per tick. An in-flight
// cycle finishes before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(w.schedule, func() {
		w.logger.Info("watch cycle start", zap.String("schedule", w.schedule))
		if err := w.cycle(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("watch cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", w.schedule, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
