package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

// DefaultRetentionInterval is how often old check runs are pruned.
const DefaultRetentionInterval = 24 * time.Hour

type CheckRunPruner interface {
	DeleteCheckRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionPruner deletes check runs older than the retention period
type RetentionPruner struct {
	store     CheckRunPruner
	logger    logger.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

func NewRetentionPruner(
	store CheckRunPruner,
	log logger.Logger,
	interval time.Duration,
	retention time.Duration,
) *RetentionPruner {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}

	return &RetentionPruner{
		store:     store,
		logger:    log,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

func (rp *RetentionPruner) Start(ctx context.Context) error {
	if _, err := rp.Prune(ctx); err != nil {
		rp.logger.Warn("initial retention pass failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(rp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := rp.Prune(ctx); err != nil {
					rp.logger.Error("retention pass failed",
						logger.Error(err))
				}
			case <-rp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (rp *RetentionPruner) Stop() {
	close(rp.stopCh)
}

// Prune removes check runs older than the retention period. A zero retention
// keeps everything.
func (rp *RetentionPruner) Prune(ctx context.Context) (int64, error) {
	if rp.retention <= 0 {
		return 0, nil
	}

	cutoff := rp.now().Add(-rp.retention)
	deleted, err := rp.store.DeleteCheckRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		rp.logger.Info("pruned old check runs",
			logger.Int64("deleted", deleted),
			logger.Time("cutoff", cutoff))
	} else {
		rp.logger.Debug("no check runs to prune")
	}
	return deleted, nil
}
