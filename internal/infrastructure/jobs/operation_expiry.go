package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/pkg/logger"
)

// OperationExpiryJob expires rebalance operations that never reached a
// terminal state within their TTL, so their funds stop counting as
// in-flight.
type OperationExpiryJob struct {
	opRepo   domainRepos.RebalanceOperationRepository
	ttl      time.Duration
	interval time.Duration
	stop     chan struct{}
}

// NewOperationExpiryJob creates a new operation expiry job
func NewOperationExpiryJob(opRepo domainRepos.RebalanceOperationRepository, ttl, interval time.Duration) *OperationExpiryJob {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &OperationExpiryJob{
		opRepo:   opRepo,
		ttl:      ttl,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the job until the context is cancelled or Stop is called.
func (j *OperationExpiryJob) Start(ctx context.Context) {
	logger.Info(ctx, "starting operation expiry job")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "operation expiry job stopped")
			return
		case <-j.stop:
			logger.Info(ctx, "operation expiry job stopped")
			return
		case <-ticker.C:
			j.expireOnce(ctx)
		}
	}
}

// Stop signals the job to exit.
func (j *OperationExpiryJob) Stop() {
	close(j.stop)
}

func (j *OperationExpiryJob) expireOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.ttl)
	n, err := j.opRepo.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error(ctx, "expiring stale operations failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info(ctx, "expired stale rebalance operations",
			zap.Int64("count", n),
			zap.Time("cutoff", cutoff))
	}
}
