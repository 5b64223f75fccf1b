package usecases

import (
	"context"
	"time"

	"go.uber.org/zap"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/domain/entities"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/pkg/logger"
)

// SwapProcessor drives the CEX leg of swap_and_bridge operations:
// deposit confirmation, quote re-check, swap execution, and order polling.
// Once the CEX leg settles (or enters recovery) the parent operation is
// handed to the callback loop for the withdrawal.
type SwapProcessor struct {
	chains   map[uint64]config.ChainConfig
	registry *bridge.Registry
	opRepo   domainRepos.RebalanceOperationRepository
	swapRepo domainRepos.SwapOperationRepository

	pollWindow   time.Duration
	pollInterval time.Duration
	sleep        func(time.Duration)
}

// NewSwapProcessor creates a new swap processor
func NewSwapProcessor(
	chains map[uint64]config.ChainConfig,
	registry *bridge.Registry,
	opRepo domainRepos.RebalanceOperationRepository,
	swapRepo domainRepos.SwapOperationRepository,
) *SwapProcessor {
	return &SwapProcessor{
		chains:       chains,
		registry:     registry,
		opRepo:       opRepo,
		swapRepo:     swapRepo,
		pollWindow:   30 * time.Second,
		pollInterval: 2 * time.Second,
		sleep:        time.Sleep,
	}
}

// ProcessTick runs one pass over every live swap.
func (s *SwapProcessor) ProcessTick(ctx context.Context) {
	swaps, err := s.swapRepo.ListByStatus(ctx, []entities.SwapStatus{
		entities.SwapStatusPendingDeposit,
		entities.SwapStatusDepositConfirmed,
		entities.SwapStatusProcessing,
	})
	if err != nil {
		logger.Error(ctx, "listing live swaps failed", zap.Error(err))
		return
	}

	for _, swap := range swaps {
		if err := s.processSwap(ctx, swap); err != nil {
			logger.Error(ctx, "swap advance failed",
				zap.String("swap_id", swap.ID.String()),
				zap.String("platform", swap.Platform),
				zap.Error(err))
		}
	}
}

func (s *SwapProcessor) processSwap(ctx context.Context, swap *entities.SwapOperation) error {
	parent, err := s.opRepo.GetByID(ctx, swap.RebalanceOperationID)
	if err != nil {
		return err
	}
	if parent.Status.IsTerminal() || parent.OriginReceipt() == nil {
		return nil
	}

	swapper, ok := s.registry.Swap(bridge.Kind(swap.Platform))
	if !ok {
		return nil
	}

	if swap.Status == entities.SwapStatusPendingDeposit {
		advanced, err := s.confirmDeposit(ctx, swapper, swap, parent)
		if err != nil || !advanced {
			return err
		}
		swap.Status = entities.SwapStatusDepositConfirmed
		// Fall through: executing right after confirmation saves a tick.
	}

	if swap.Status == entities.SwapStatusDepositConfirmed {
		return s.executeWithBudgetCheck(ctx, swapper, swap, parent)
	}

	return s.pollOrder(ctx, swapper, swap, parent)
}

// confirmDeposit reuses the bridge readiness probe against the CEX deposit
// address.
func (s *SwapProcessor) confirmDeposit(ctx context.Context, swapper bridge.SwapAdapter, swap *entities.SwapOperation, parent *entities.RebalanceOperation) (bool, error) {
	route := s.parentRoute(parent)
	ready, err := swapper.ReadyOnDestination(ctx, parent.Amount, route, parent.OriginReceipt())
	if err != nil || !ready {
		return false, err
	}
	status := entities.SwapStatusDepositConfirmed
	if err := s.swapRepo.Update(ctx, swap.ID, domainRepos.SwapUpdate{Status: &status}); err != nil {
		return false, err
	}
	return true, nil
}

// executeWithBudgetCheck re-quotes the swap and executes it only if the
// fresh swap slippage plus the bridge slippage observed at planning time
// still fits the planned budget. A breach routes the swap into recovery:
// the callback loop will withdraw the original asset back to the origin.
func (s *SwapProcessor) executeWithBudgetCheck(ctx context.Context, swapper bridge.SwapAdapter, swap *entities.SwapOperation, parent *entities.RebalanceOperation) error {
	meta := swap.Metadata
	if meta == nil {
		meta = &entities.SwapMetadata{}
	}

	quote, err := swapper.SwapQuote(ctx, meta.FromSymbol, meta.ToSymbol, swap.FromAmount)
	if err != nil {
		return err
	}

	from18 := To18(quote.FromAmount, s.assetDecimals(parent.OriginChainID, swap.FromAsset))
	to18 := To18(quote.ToAmount, s.assetDecimals(parent.DestinationChainID, swap.ToAsset))
	actualSwapDbps := SlippageDbps(from18, to18)

	if actualSwapDbps+meta.BridgeSlippageDbps > meta.TotalBudgetDbps {
		return s.enterRecovery(ctx, swap, parent, entities.SwapRecoveryReasonSlippage, actualSwapDbps, meta)
	}

	result, err := swapper.ExecuteSwap(ctx, quote)
	if err != nil {
		return err
	}

	status := entities.SwapStatusProcessing
	update := domainRepos.SwapUpdate{
		Status:       &status,
		OrderID:      &result.OrderID,
		QuoteID:      &quote.QuoteID,
		ExpectedRate: &quote.Rate,
	}
	if err := s.swapRepo.Update(ctx, swap.ID, update); err != nil {
		return err
	}
	swap.Status = status
	swap.OrderID.SetValid(result.OrderID)

	// Inline poll: most CEX orders fill well within the window.
	return s.pollInline(ctx, swapper, swap, parent)
}

func (s *SwapProcessor) pollInline(ctx context.Context, swapper bridge.SwapAdapter, swap *entities.SwapOperation, parent *entities.RebalanceOperation) error {
	deadline := time.Now().Add(s.pollWindow)
	for {
		settled, err := s.pollOnce(ctx, swapper, swap, parent)
		if err != nil || settled {
			return err
		}
		if time.Now().After(deadline) {
			// Leave in processing; the ticker keeps polling.
			return nil
		}
		s.sleep(s.pollInterval)
	}
}

func (s *SwapProcessor) pollOrder(ctx context.Context, swapper bridge.SwapAdapter, swap *entities.SwapOperation, parent *entities.RebalanceOperation) error {
	_, err := s.pollOnce(ctx, swapper, swap, parent)
	return err
}

func (s *SwapProcessor) pollOnce(ctx context.Context, swapper bridge.SwapAdapter, swap *entities.SwapOperation, parent *entities.RebalanceOperation) (settled bool, err error) {
	if !swap.OrderID.Valid {
		return true, nil
	}
	result, err := swapper.SwapStatus(ctx, swap.OrderID.String)
	if err != nil {
		return false, err
	}

	switch result.Status {
	case bridge.SwapOrderSuccess:
		status := entities.SwapStatusCompleted
		if err := s.swapRepo.Update(ctx, swap.ID, domainRepos.SwapUpdate{Status: &status}); err != nil {
			return false, err
		}
		// Hand the withdrawal to the callback loop.
		return true, s.advanceParent(ctx, parent)
	case bridge.SwapOrderFailed:
		meta := swap.Metadata
		if meta == nil {
			meta = &entities.SwapMetadata{}
		}
		return true, s.enterRecovery(ctx, swap, parent, entities.SwapRecoveryReasonOrderFailed, 0, meta)
	default:
		return false, nil
	}
}

// enterRecovery marks the swap recovering and hands the parent to the
// callback loop, which withdraws the original asset back to the origin.
func (s *SwapProcessor) enterRecovery(ctx context.Context, swap *entities.SwapOperation, parent *entities.RebalanceOperation, reason string, actualSwapDbps uint32, meta *entities.SwapMetadata) error {
	recovering := entities.SwapStatusRecovering
	updatedMeta := *meta
	updatedMeta.FailureReason = reason

	logger.Warn(ctx, "swap entering recovery",
		zap.String("swap_id", swap.ID.String()),
		zap.String("platform", swap.Platform),
		zap.String("reason", reason),
		zap.Uint32("actual_swap_dbps", actualSwapDbps),
		zap.Uint32("bridge_dbps", meta.BridgeSlippageDbps),
		zap.Uint32("budget_dbps", meta.TotalBudgetDbps))

	if err := s.swapRepo.Update(ctx, swap.ID, domainRepos.SwapUpdate{
		Status:   &recovering,
		Metadata: &updatedMeta,
	}); err != nil {
		return err
	}
	return s.advanceParent(ctx, parent)
}

func (s *SwapProcessor) advanceParent(ctx context.Context, parent *entities.RebalanceOperation) error {
	if parent.Status != entities.OperationStatusPending {
		return nil
	}
	status := entities.OperationStatusAwaitingCallback
	return s.opRepo.Update(ctx, parent.ID, domainRepos.OperationUpdate{Status: &status})
}

func (s *SwapProcessor) parentRoute(parent *entities.RebalanceOperation) entities.Route {
	route := entities.Route{
		Origin:      parent.OriginChainID,
		Destination: parent.DestinationChainID,
	}
	if chain, ok := s.chains[parent.OriginChainID]; ok {
		if asset, ok := chain.AssetByTicker(parent.TickerHash); ok {
			route.Asset = asset.Address
		}
	}
	return route
}

func (s *SwapProcessor) assetDecimals(chainID uint64, address string) uint8 {
	if chain, ok := s.chains[chainID]; ok {
		if asset, ok := chain.AssetByAddress(address); ok {
			return asset.Decimals
		}
	}
	return CanonicalDecimals
}
