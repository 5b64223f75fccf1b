package usecases

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/blockchain"
	"mark-operator.backend/pkg/logger"
	"mark-operator.backend/pkg/metrics"
)

// CallbackProcessor advances in-flight rebalance operations: it probes
// destination readiness, submits destination callbacks, and completes
// operations and their earmarks. Operations are processed sequentially
// within a tick, which gives the at-most-once-concurrent-callback
// guarantee per operation.
type CallbackProcessor struct {
	chains       map[uint64]config.ChainConfig
	registry     *bridge.Registry
	chainService blockchain.ChainService
	earmarkRepo  domainRepos.EarmarkRepository
	opRepo       domainRepos.RebalanceOperationRepository
	swapRepo     domainRepos.SwapOperationRepository
}

// NewCallbackProcessor creates a new callback processor
func NewCallbackProcessor(
	chains map[uint64]config.ChainConfig,
	registry *bridge.Registry,
	chainService blockchain.ChainService,
	earmarkRepo domainRepos.EarmarkRepository,
	opRepo domainRepos.RebalanceOperationRepository,
	swapRepo domainRepos.SwapOperationRepository,
) *CallbackProcessor {
	return &CallbackProcessor{
		chains:       chains,
		registry:     registry,
		chainService: chainService,
		earmarkRepo:  earmarkRepo,
		opRepo:       opRepo,
		swapRepo:     swapRepo,
	}
}

// ProcessTick runs one pass over every non-terminal operation.
func (c *CallbackProcessor) ProcessTick(ctx context.Context) {
	ops, _, err := c.opRepo.List(ctx, domainRepos.OperationFilter{
		Statuses: []entities.OperationStatus{
			entities.OperationStatusPending,
			entities.OperationStatusAwaitingCallback,
		},
	})
	if err != nil {
		logger.Error(ctx, "listing in-flight operations failed", zap.Error(err))
		return
	}

	for _, op := range ops {
		if err := c.processOperation(ctx, op); err != nil {
			logger.Error(ctx, "operation advance failed",
				zap.String("operation_id", op.ID.String()),
				zap.String("bridge", op.Bridge),
				zap.Error(err))
		}
	}
}

func (c *CallbackProcessor) processOperation(ctx context.Context, op *entities.RebalanceOperation) error {
	if op.Bridge == "" || op.OriginReceipt() == nil {
		return nil
	}
	// The swap sub-state-machine owns swap parents until the CEX leg has
	// finished; this loop only drives their destination callback.
	if op.OperationType == entities.OperationTypeSwapAndBridge && op.Status == entities.OperationStatusPending {
		return nil
	}

	adapter, err := c.registry.Get(bridge.Kind(op.Bridge))
	if err != nil {
		return err
	}
	route := c.operationRoute(ctx, op)

	if op.Status == entities.OperationStatusPending {
		ready, err := adapter.ReadyOnDestination(ctx, op.Amount, route, op.OriginReceipt())
		if err != nil {
			return err
		}
		if !ready {
			return nil
		}
		status := entities.OperationStatusAwaitingCallback
		if err := c.opRepo.Update(ctx, op.ID, domainRepos.OperationUpdate{Status: &status}); err != nil {
			return err
		}
		op.Status = status
	}

	return c.runDestinationCallback(ctx, adapter, op, route)
}

func (c *CallbackProcessor) runDestinationCallback(ctx context.Context, adapter bridge.Adapter, op *entities.RebalanceOperation, route entities.Route) error {
	memoTx, err := adapter.DestinationCallback(ctx, route, op.OriginReceipt())
	if err != nil {
		// Stay in AWAITING_CALLBACK; the next tick retries.
		return err
	}

	update := domainRepos.OperationUpdate{}
	if memoTx != nil {
		tx := memoTx.Tx
		destChain := c.chains[op.DestinationChainID]
		if destChain.SafeAddress != "" && destChain.ZodiacModule != "" {
			tx = blockchain.WrapWithZodiac(destChain.ZodiacModule, tx)
		}
		receipt, err := c.chainService.SubmitAndMonitor(ctx, tx)
		if err != nil {
			return err
		}
		update.Transactions = map[uint64]*entities.TxReceipt{op.DestinationChainID: receipt}
	}

	return c.completeOperation(ctx, op, update)
}

// completeOperation latches the operation terminal state and bubbles the
// earmark when every sibling is done.
func (c *CallbackProcessor) completeOperation(ctx context.Context, op *entities.RebalanceOperation, update domainRepos.OperationUpdate) error {
	terminal := entities.OperationStatusCompleted

	if op.OperationType == entities.OperationTypeSwapAndBridge {
		recovered, err := c.settleSwapChild(ctx, op)
		if err != nil {
			return err
		}
		if recovered {
			terminal = entities.OperationStatusFailed
		}
	}

	update.Status = &terminal
	if err := c.opRepo.Update(ctx, op.ID, update); err != nil {
		return err
	}
	metrics.RebalanceOperations.WithLabelValues(string(terminal), op.Bridge).Inc()
	logger.Info(ctx, "rebalance operation finished",
		zap.String("operation_id", op.ID.String()),
		zap.String("status", string(terminal)),
		zap.String("bridge", op.Bridge))

	if terminal == entities.OperationStatusCompleted {
		return c.bubbleEarmark(ctx, op)
	}
	return nil
}

// settleSwapChild closes out the swap child once the parent's callback has
// run. A recovering child means the callback withdrew the original asset
// back to the origin, so the parent failed.
func (c *CallbackProcessor) settleSwapChild(ctx context.Context, op *entities.RebalanceOperation) (recovered bool, err error) {
	child, err := c.swapRepo.GetByRebalanceOperationID(ctx, op.ID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if child.Status == entities.SwapStatusRecovering {
		failed := entities.SwapStatusFailed
		return true, c.swapRepo.Update(ctx, child.ID, domainRepos.SwapUpdate{Status: &failed})
	}
	return false, nil
}

// bubbleEarmark flips a PENDING earmark to READY when every operation
// under it has completed.
func (c *CallbackProcessor) bubbleEarmark(ctx context.Context, op *entities.RebalanceOperation) error {
	if op.EarmarkID == nil {
		return nil
	}
	earmark, err := c.earmarkRepo.GetByID(ctx, *op.EarmarkID)
	if err != nil {
		return err
	}
	if earmark.Status != entities.EarmarkStatusPending {
		return nil
	}

	siblings, err := c.opRepo.ListByEarmark(ctx, earmark.ID)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == op.ID {
			continue
		}
		if sibling.Status != entities.OperationStatusCompleted {
			return nil
		}
	}

	if err := c.earmarkRepo.UpdateStatus(ctx, earmark.ID, entities.EarmarkStatusReady); err != nil {
		return err
	}
	logger.Info(ctx, "earmark ready",
		zap.String("earmark_id", earmark.ID.String()),
		zap.String("invoice_id", earmark.InvoiceID))
	return nil
}

// operationRoute rebuilds the route for the destination-side adapter
// calls: the asset is the contract the funds land as on the destination
// chain. Swap parents land as the swapped-to asset recorded on the child.
func (c *CallbackProcessor) operationRoute(ctx context.Context, op *entities.RebalanceOperation) entities.Route {
	route := entities.Route{
		Origin:      op.OriginChainID,
		Destination: op.DestinationChainID,
	}
	if op.OperationType == entities.OperationTypeSwapAndBridge {
		if child, err := c.swapRepo.GetByRebalanceOperationID(ctx, op.ID); err == nil {
			// A recovering child withdraws the original asset instead.
			if child.Status == entities.SwapStatusRecovering && child.FromAsset != "" {
				route.Asset = child.FromAsset
				return route
			}
			if child.ToAsset != "" {
				route.Asset = child.ToAsset
				return route
			}
		}
	}
	if chain, ok := c.chains[op.DestinationChainID]; ok {
		if asset, ok := chain.AssetByTicker(op.TickerHash); ok {
			route.Asset = asset.Address
		}
	}
	return route
}
