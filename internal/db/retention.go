package db

import (
	"context"
	"time"

	"github.com/banshee-data/position.report/internal/monitoring"
	"github.com/banshee-data/position.report/internal/timeutil"
)

// RetentionWorker periodically deletes samples older than Retention.
// Tracker events are kept.
type RetentionWorker struct {
	DB        *DB
	Retention time.Duration
	Interval  time.Duration // how often to prune
	Clock     timeutil.Clock
}

func NewRetentionWorker(db *DB, retention time.Duration) *RetentionWorker {
	return &RetentionWorker{
		DB:        db,
		Retention: retention,
		Interval:  time.Hour,
		Clock:     timeutil.RealClock{},
	}
}

// Run prunes once immediately and then every Interval until ctx is done.
// A non-positive Retention disables pruning.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.Retention <= 0 {
		return
	}
	timer := w.Clock.NewTimer(w.Interval)
	defer timer.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			monitoring.Logf("[retention] prune failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			timer.Reset(w.Interval)
		}
	}
}

// RunOnce deletes samples older than Retention and reports how many went.
func (w *RetentionWorker) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.DB.PruneSamples(ctx, w.Clock.Now().Add(-w.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		monitoring.Logf("[retention] pruned %d samples older than %v", n, w.Retention)
	}
	return n, nil
}
