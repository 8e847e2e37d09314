package quota

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pagesmith/pagesmith/pkg/observability"
)

// retentionSlack keeps records beyond the counting window so a sweep racing
// a window-boundary check never deletes a still-countable row.
const retentionSlack = time.Hour

// Sweeper prunes quota records that have aged out of every possible window.
// The table is append-only, so without pruning it grows without bound.
type Sweeper struct {
	store  Store
	window time.Duration
	logger *observability.Logger
	cron   *cron.Cron
}

// NewSweeper creates a sweeper for the given counting window
func NewSweeper(store Store, window time.Duration, logger *observability.Logger) *Sweeper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Sweeper{
		store:  store,
		window: window,
		logger: logger,
	}
}

// Start schedules an hourly sweep. Call Stop to shut it down.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@hourly", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

func (s *Sweeper) sweep() {
	defer observability.RecoverPanic(s.logger, "quota record sweep")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-(s.window + retentionSlack))
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("quota record sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("pruned expired quota records")
	}
}
