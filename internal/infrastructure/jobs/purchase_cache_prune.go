package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"mark-operator.backend/pkg/logger"
	"mark-operator.backend/pkg/redis"
)

// PurchaseCachePruneJob drops purchase records whose TTL has lapsed; a
// settlement webhook that never arrived must not pin an invoice forever.
type PurchaseCachePruneJob struct {
	store    *redis.PurchaseStore
	interval time.Duration
	stop     chan struct{}
}

// NewPurchaseCachePruneJob creates a new purchase cache prune job
func NewPurchaseCachePruneJob(store *redis.PurchaseStore, interval time.Duration) *PurchaseCachePruneJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PurchaseCachePruneJob{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the job until the context is cancelled or Stop is called.
func (j *PurchaseCachePruneJob) Start(ctx context.Context) {
	logger.Info(ctx, "starting purchase cache prune job")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "purchase cache prune job stopped")
			return
		case <-j.stop:
			logger.Info(ctx, "purchase cache prune job stopped")
			return
		case <-ticker.C:
			j.pruneOnce(ctx)
		}
	}
}

// Stop signals the job to exit.
func (j *PurchaseCachePruneJob) Stop() {
	close(j.stop)
}

func (j *PurchaseCachePruneJob) pruneOnce(ctx context.Context) {
	removed, err := j.store.Prune(ctx)
	if err != nil {
		logger.Error(ctx, "pruning purchase cache failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info(ctx, "pruned stale purchase records", zap.Int("count", removed))
	}
}
