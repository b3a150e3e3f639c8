package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"social_feed/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs syncer every interval, each run
// bounded by timeout.
func NewScheduler(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs a sync immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "timeout", s.timeout)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.syncer.Sync(syncCtx)
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		s.logger.Info("sync skipped: no page connected")
	case errors.Is(err, domain.ErrSyncInProgress):
		s.logger.Info("sync skipped: previous run still in progress")
	case err != nil:
		s.logger.Error("sync failed", "error", err)
	default:
		s.logger.Debug("scheduled sync finished", "run_id", stats.RunID, "fetched", stats.Fetched)
	}
}
