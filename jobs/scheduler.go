// Package jobs runs the server's periodic maintenance.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SnapshotPruner deletes price snapshots recorded before cutoff.
type SnapshotPruner interface {
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron      *cron.Cron
	pruner    SnapshotPruner
	retention time.Duration
	schedule  string
	now       func() time.Time
}

// NewScheduler prunes snapshots older than retention on the cron schedule
// ("@daily", "0 3 * * *", ...).
func NewScheduler(pruner SnapshotPruner, retention time.Duration, schedule string) *Scheduler {
	if schedule == "" {
		schedule = "@daily"
	}
	return &Scheduler{
		cron:      cron.New(),
		pruner:    pruner,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.PruneSnapshots(ctx); err != nil {
			slog.Error("Snapshot retention failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule snapshot retention %q: %w", s.schedule, err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "schedule", s.schedule, "retention", s.retention)
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

// PruneSnapshots deletes snapshots older than the retention window. A
// non-positive retention keeps everything.
func (s *Scheduler) PruneSnapshots(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.pruner.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	slog.Info("Pruned price snapshots", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}
