package usecases

import (
	"context"
	"errors"
	"math/big"

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

// executedOperation is one planned operation whose origin (Rebalance-memo)
// transaction confirmed on chain.
type executedOperation struct {
	planned         entities.PlannedOperation
	originReceipt   *entities.TxReceipt
	effectiveAmount *big.Int
	recipient       string
}

// Executor turns a rebalance plan into on-chain transactions and, once the
// origin legs confirm, into persisted earmark and operation rows.
type Executor struct {
	chains       map[uint64]config.ChainConfig
	registry     *bridge.Registry
	chainService blockchain.ChainService
	earmarkRepo  domainRepos.EarmarkRepository
	opRepo       domainRepos.RebalanceOperationRepository
	swapRepo     domainRepos.SwapOperationRepository
	uow          domainRepos.UnitOfWork
	quota        *QuotaChecker
}

// NewExecutor creates a new executor
func NewExecutor(
	chains map[uint64]config.ChainConfig,
	registry *bridge.Registry,
	chainService blockchain.ChainService,
	earmarkRepo domainRepos.EarmarkRepository,
	opRepo domainRepos.RebalanceOperationRepository,
	swapRepo domainRepos.SwapOperationRepository,
	uow domainRepos.UnitOfWork,
	quota *QuotaChecker,
) *Executor {
	return &Executor{
		chains:       chains,
		registry:     registry,
		chainService: chainService,
		earmarkRepo:  earmarkRepo,
		opRepo:       opRepo,
		swapRepo:     swapRepo,
		uow:          uow,
		quota:        quota,
	}
}

// Execute runs the plan for an invoice. It is idempotent: when an active
// earmark already exists for the invoice it is returned untouched and no
// adapter is called. Returns nil when no earmark was created.
func (e *Executor) Execute(ctx context.Context, invoice *entities.Invoice, plan *entities.RebalancePlan) (*entities.Earmark, error) {
	existing, err := e.earmarkRepo.GetActiveByInvoiceID(ctx, invoice.IntentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	executed := make([]executedOperation, 0, len(plan.Operations))
	for _, planned := range plan.Operations {
		done, opErr := e.executeOperation(ctx, planned)
		if opErr != nil {
			logger.Error(ctx, "planned operation failed",
				zap.String("invoice_id", invoice.IntentID),
				zap.String("bridge", planned.Bridge),
				zap.Uint64("origin", planned.OriginChainID),
				zap.Uint64("destination", planned.DestinationChainID),
				zap.Error(opErr))
			continue
		}
		executed = append(executed, *done)
	}

	if len(executed) == 0 {
		return nil, nil
	}

	status := entities.EarmarkStatusPending
	if len(executed) < len(plan.Operations) {
		// Partial execution: the earmark exists only to record the
		// on-chain side effects, it will never serve a purchase.
		status = entities.EarmarkStatusFailed
	}

	earmark := &entities.Earmark{
		InvoiceID:               invoice.IntentID,
		DesignatedPurchaseChain: plan.DestinationChain,
		TickerHash:              invoice.TickerHash,
		MinAmount:               plan.TotalAmount,
		Status:                  status,
	}

	err = e.uow.Do(ctx, func(txCtx context.Context) error {
		if err := e.earmarkRepo.Create(txCtx, earmark); err != nil {
			return err
		}
		return e.persistOperations(txCtx, earmark, executed)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrActiveEarmarkExists) {
			return e.recoverFromRace(ctx, invoice.IntentID)
		}
		// The transactions are mined; a failed record write cannot be
		// rolled back on chain. Manual reconciliation territory.
		logger.Error(ctx, "record write failed after confirmed transactions",
			zap.String("invoice_id", invoice.IntentID),
			zap.Int("confirmed_operations", len(executed)),
			zap.Error(err))
		return nil, err
	}

	if status == entities.EarmarkStatusFailed {
		return nil, nil
	}
	return earmark, nil
}

// executeOperation submits one planned operation's origin transactions in
// order. Success requires the Rebalance-memo transaction to confirm.
func (e *Executor) executeOperation(ctx context.Context, planned entities.PlannedOperation) (*executedOperation, error) {
	adapter, err := e.registry.Get(bridge.Kind(planned.Bridge))
	if err != nil {
		return nil, err
	}

	originChain, ok := e.chains[planned.OriginChainID]
	if !ok {
		return nil, domainerrors.ErrChainNotConfigured
	}
	destChain, ok := e.chains[planned.DestinationChainID]
	if !ok {
		return nil, domainerrors.ErrChainNotConfigured
	}
	sender := originChain.Recipient()
	recipient := destChain.Recipient()

	if planned.Swap != nil {
		originAsset, _ := originChain.AssetByAddress(planned.Asset)
		if err := e.quota.Check(ctx, bridge.Kind(planned.Bridge), planned.AmountNative, originAsset.Symbol, originAsset.Decimals); err != nil {
			return nil, err
		}
	}

	route := entities.Route{
		Origin:      planned.OriginChainID,
		Destination: planned.DestinationChainID,
		Asset:       planned.Asset,
	}
	memoTxs, err := adapter.Send(ctx, sender, recipient, planned.AmountNative, route)
	if err != nil {
		return nil, err
	}

	done := &executedOperation{
		planned:         planned,
		effectiveAmount: planned.AmountNative,
		recipient:       recipient,
	}
	for _, memoTx := range memoTxs {
		tx := memoTx.Tx
		if originChain.SafeAddress != "" && originChain.ZodiacModule != "" {
			tx = blockchain.WrapWithZodiac(originChain.ZodiacModule, tx)
		}
		receipt, err := e.chainService.SubmitAndMonitor(ctx, tx)
		if err != nil {
			return nil, err
		}
		receipt.From = sender

		if memoTx.Memo == bridge.MemoRebalance {
			done.originReceipt = receipt
			if memoTx.EffectiveAmount != nil {
				done.effectiveAmount = memoTx.EffectiveAmount
			}
		}
	}
	if done.originReceipt == nil {
		return nil, errors.New("adapter returned no Rebalance-memo transaction")
	}

	metrics.RebalanceOperations.WithLabelValues("submitted", planned.Bridge).Inc()
	return done, nil
}

// persistOperations writes one RebalanceOperation row per confirmed
// operation, plus the swap child for swap_and_bridge legs.
func (e *Executor) persistOperations(ctx context.Context, earmark *entities.Earmark, executed []executedOperation) error {
	for _, done := range executed {
		opType := entities.OperationTypeBridge
		if done.planned.Swap != nil {
			opType = entities.OperationTypeSwapAndBridge
		}

		op := &entities.RebalanceOperation{
			EarmarkID:          &earmark.ID,
			OriginChainID:      done.planned.OriginChainID,
			DestinationChainID: done.planned.DestinationChainID,
			TickerHash:         done.planned.TickerHash,
			Amount:             done.effectiveAmount,
			Slippage:           done.planned.SlippageDbps,
			Status:             entities.OperationStatusPending,
			Bridge:             done.planned.Bridge,
			Recipient:          done.recipient,
			OperationType:      opType,
			Transactions: map[uint64]*entities.TxReceipt{
				done.planned.OriginChainID: done.originReceipt,
			},
		}
		if err := e.opRepo.Create(ctx, op); err != nil {
			return err
		}

		if swap := done.planned.Swap; swap != nil {
			child := &entities.SwapOperation{
				RebalanceOperationID: op.ID,
				Platform:             swap.Platform,
				FromAsset:            swap.FromAsset,
				ToAsset:              swap.ToAsset,
				FromAmount:           swap.ExpectedFromAmount,
				ToAmount:             swap.ExpectedToAmount,
				ExpectedRate:         swap.ExpectedRate,
				Status:               entities.SwapStatusPendingDeposit,
				Metadata: &entities.SwapMetadata{
					FromSymbol:         swap.FromSymbol,
					ToSymbol:           swap.ToSymbol,
					ExpectedFromAmount: swap.ExpectedFromAmount.String(),
					ExpectedToAmount:   swap.ExpectedToAmount.String(),
					SwapSlippageDbps:   swap.SwapSlippageDbps,
					BridgeSlippageDbps: swap.BridgeSlippageDbps,
					TotalBudgetDbps:    swap.TotalBudgetDbps,
				},
			}
			if err := e.swapRepo.Create(ctx, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// recoverFromRace handles a concurrent executor winning the earmark
// insert: re-read and return the winner when it is usable.
func (e *Executor) recoverFromRace(ctx context.Context, invoiceID string) (*entities.Earmark, error) {
	winner, err := e.earmarkRepo.GetActiveByInvoiceID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if winner.Status == entities.EarmarkStatusPending {
		return winner, nil
	}
	return nil, nil
}
