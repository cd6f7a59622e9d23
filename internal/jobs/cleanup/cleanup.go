package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = time.Hour
	defaultBatch    = 200
)

// IndexPruner removes per-user session index entries whose session expired.
type IndexPruner interface {
	PruneUserIndexes(ctx context.Context, batch int64) (int, error)
}

type Job struct {
	sessions IndexPruner
	interval time.Duration
	batch    int64
	logger   *zap.Logger
}

func New(sessions IndexPruner, interval time.Duration, logger *zap.Logger) *Job {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		sessions: sessions,
		interval: interval,
		batch:    defaultBatch,
		logger:   logger,
	}
}

// Run performs one cleanup pass.
func (j *Job) Run(ctx context.Context) error {
	if j.sessions == nil {
		return nil
	}

	removed, err := j.sessions.PruneUserIndexes(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("prune session indexes: %w", err)
	}
	if removed > 0 {
		j.logger.Info("cleanup stale session index entries completed", zap.Int("removed", removed))
	}
	return nil
}

// Start runs the job every interval until ctx is done.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup job failed", zap.Error(err))
			}
		}
	}
}
