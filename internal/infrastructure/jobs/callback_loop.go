package jobs

import (
	"context"
	"time"

	"mark-operator.backend/internal/usecases"
	"mark-operator.backend/pkg/logger"
)

// CallbackLoop periodically advances in-flight rebalance operations and
// live CEX swaps.
type CallbackLoop struct {
	callbacks *usecases.CallbackProcessor
	swaps     *usecases.SwapProcessor
	interval  time.Duration
	stop      chan struct{}
}

// NewCallbackLoop creates a new callback loop
func NewCallbackLoop(callbacks *usecases.CallbackProcessor, swaps *usecases.SwapProcessor, interval time.Duration) *CallbackLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CallbackLoop{
		callbacks: callbacks,
		swaps:     swaps,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

// Start runs the loop until the context is cancelled or Stop is called.
func (j *CallbackLoop) Start(ctx context.Context) {
	logger.Info(ctx, "starting callback loop")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "callback loop stopped")
			return
		case <-j.stop:
			logger.Info(ctx, "callback loop stopped")
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

// Stop signals the loop to exit.
func (j *CallbackLoop) Stop() {
	close(j.stop)
}

// The swap pass runs first so a swap settled this tick can have its
// destination callback picked up in the same pass.
func (j *CallbackLoop) tick(ctx context.Context) {
	j.swaps.ProcessTick(ctx)
	j.callbacks.ProcessTick(ctx)
}
