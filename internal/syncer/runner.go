package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/neptus-sync/internal/model"
)

// DefaultInterval is the auto-sync period.
const DefaultInterval = 30 * time.Second

// Uploader runs one upload cycle. *Manager implements it.
type Uploader interface {
	Sync(ctx context.Context) (model.UploadResult, error)
}

// Runner triggers an upload immediately and then on every tick until its context ends.
type Runner struct {
	up       Uploader
	interval time.Duration
	log      *zap.Logger
}

// NewRunner returns a runner; a non-positive interval falls back to DefaultInterval.
func NewRunner(up Uploader, interval time.Duration, log *zap.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{up: up, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. Cycle errors are logged and never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.once(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("auto-sync stopped")
			return nil
		case <-t.C:
			r.once(ctx)
		}
	}
}

func (r *Runner) once(ctx context.Context) {
	res, err := r.up.Sync(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("auto-sync failed", zap.Error(err))
		}
		return
	}
	if res.TotalPending > 0 {
		r.log.Info("auto-sync",
			zap.Int("synced", res.SyncedCount),
			zap.Int("failed", res.FailedCount),
		)
	}
}
