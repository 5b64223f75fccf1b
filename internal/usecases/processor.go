package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/everclear"
	"mark-operator.backend/pkg/logger"
	"mark-operator.backend/pkg/metrics"
)

// StrategyXERC20 marks assets the hub settles through XERC20; such
// invoices never need operator inventory.
const StrategyXERC20 = "XERC20"

// HubClient is the Everclear hub surface the processor depends on.
type HubClient interface {
	GetInvoice(ctx context.Context, intentID string) (*entities.Invoice, error)
	GetMinAmounts(ctx context.Context, intentID string) (map[uint64]*big.Int, error)
	GetEconomyData(ctx context.Context, domain uint64, tickerHash string) (*everclear.EconomyData, error)
}

// PurchaseCache is the ephemeral purchase-record store plus the global
// pause flags.
type PurchaseCache interface {
	GetPurchases(ctx context.Context, invoiceID string) ([]byte, error)
	SetPurchases(ctx context.Context, invoiceID string, payload []byte) error
	RemovePurchases(ctx context.Context, invoiceIDs ...string) error
	IsPurchasePaused(ctx context.Context) (bool, error)
	IsRebalancePaused(ctx context.Context) (bool, error)
}

// PurchaseService splits an invoice across destinations and submits
// purchase intents to the hub.
type PurchaseService interface {
	SplitAndSendIntents(
		ctx context.Context,
		invoice *entities.Invoice,
		balances map[string]map[uint64]*big.Int,
		custodied map[uint64]*big.Int,
		minAmounts map[uint64]*big.Int,
	) ([]entities.PurchaseRecord, error)
}

// EventProcessor handles invoice-enqueued and settlement-enqueued events:
// validation, earmark reconciliation, rebalance planning and execution,
// and the purchase hand-off.
type EventProcessor struct {
	chains      map[uint64]config.ChainConfig
	rebalance   config.RebalanceConfig
	hub         HubClient
	accounting  *Accounting
	planner     *Planner
	executor    *Executor
	earmarkRepo domainRepos.EarmarkRepository
	purchases   PurchaseCache
	purchaser   PurchaseService

	now func() time.Time
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	chains map[uint64]config.ChainConfig,
	rebalance config.RebalanceConfig,
	hub HubClient,
	accounting *Accounting,
	planner *Planner,
	executor *Executor,
	earmarkRepo domainRepos.EarmarkRepository,
	purchases PurchaseCache,
	purchaser PurchaseService,
) *EventProcessor {
	return &EventProcessor{
		chains:      chains,
		rebalance:   rebalance,
		hub:         hub,
		accounting:  accounting,
		planner:     planner,
		executor:    executor,
		earmarkRepo: earmarkRepo,
		purchases:   purchases,
		purchaser:   purchaser,
		now:         time.Now,
	}
}

// Handle dispatches one queue event.
func (p *EventProcessor) Handle(ctx context.Context, event Event) Result {
	switch event.Type {
	case EventInvoiceEnqueued:
		result := p.processInvoice(ctx, event.ID)
		metrics.EventsProcessed.WithLabelValues(string(event.Type), result.Kind.String()).Inc()
		return result
	case EventSettlementEnqueued:
		result := p.processSettlement(ctx, event.ID)
		metrics.EventsProcessed.WithLabelValues(string(event.Type), result.Kind.String()).Inc()
		return result
	default:
		return Invalid("unknown event type")
	}
}

func (p *EventProcessor) processInvoice(ctx context.Context, invoiceID string) Result {
	invoice, err := p.hub.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrInvoiceNotFound) {
			// The invoice is gone upstream; any reservation for it is stale.
			p.cleanupStaleEarmarks(ctx, invoiceID)
			return Success()
		}
		return Failure(p.rebalance.RetryAfterEvent)
	}

	if reason := p.validateInvoice(invoice); reason != "" {
		logger.Info(ctx, "invoice rejected",
			zap.String("invoice_id", invoiceID),
			zap.String("reason", reason))
		return Invalid(reason)
	}

	minAmounts, err := p.hub.GetMinAmounts(ctx, invoiceID)
	if err != nil {
		return Failure(p.rebalance.RetryAfterEvent)
	}

	minAmounts, result := p.reconcileEarmark(ctx, invoice, minAmounts)
	if result != nil {
		return *result
	}

	paused, err := p.purchases.IsPurchasePaused(ctx)
	if err != nil || paused {
		return Failure(p.rebalance.RetryAfterEvent)
	}

	balances, err := p.accounting.MarkBalances(ctx)
	if err != nil {
		return Failure(p.rebalance.RetryAfterEvent)
	}
	custodied, err := p.custodiedBalances(ctx, invoice, minAmounts)
	if err != nil {
		return Failure(p.rebalance.RetryAfterEvent)
	}

	cached, err := p.purchases.GetPurchases(ctx, invoiceID)
	if err == nil && cached != nil {
		// A purchase is already in flight for this invoice.
		return Success()
	}

	records, err := p.purchaser.SplitAndSendIntents(ctx, invoice, balances, custodied, minAmounts)
	if err != nil {
		return Failure(p.rebalance.RetryAfterEvent)
	}
	if len(records) == 0 {
		return Failure(p.rebalance.RetryAfterDefer)
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return Failure(p.rebalance.RetryAfterDefer)
	}
	if err := p.purchases.SetPurchases(ctx, invoiceID, payload); err != nil {
		logger.Error(ctx, "caching purchases failed",
			zap.String("invoice_id", invoiceID), zap.Error(err))
	}
	p.cleanupCompletedEarmarks(ctx, invoiceID)
	return Success()
}

func (p *EventProcessor) processSettlement(ctx context.Context, invoiceID string) Result {
	cached, err := p.purchases.GetPurchases(ctx, invoiceID)
	if err != nil || cached == nil {
		return Success()
	}

	var records []entities.PurchaseRecord
	if err := json.Unmarshal(cached, &records); err == nil {
		seen := make(map[uint64]bool)
		for _, record := range records {
			dest := record.Purchase.DestinationChain
			if seen[dest] {
				continue
			}
			seen[dest] = true
			enqueued := time.Unix(int64(record.HubInvoiceEnqueued), 0)
			metrics.ObserveClearance(dest, p.now().Sub(enqueued))
		}
	}

	if err := p.purchases.RemovePurchases(ctx, invoiceID); err != nil {
		logger.Error(ctx, "removing cached purchases failed",
			zap.String("invoice_id", invoiceID), zap.Error(err))
	}
	return Success()
}

// validateInvoice returns a rejection reason for permanently invalid
// invoices, or "".
func (p *EventProcessor) validateInvoice(invoice *entities.Invoice) string {
	if invoice.Age(p.now()) > p.rebalance.MaxInvoiceAge {
		return "invoice too old"
	}
	for _, chain := range p.chains {
		if strings.EqualFold(chain.OwnerAddress, invoice.Owner) {
			return "invoice owner is self"
		}
	}

	supported := false
	for _, dest := range invoice.Destinations {
		chain, ok := p.chains[dest]
		if !ok {
			continue
		}
		asset, ok := chain.AssetByTicker(invoice.TickerHash)
		if !ok {
			continue
		}
		if asset.Strategy == StrategyXERC20 {
			return "destination settles via XERC20"
		}
		supported = true
	}
	if !supported {
		return "no configured destination for ticker"
	}
	return ""
}

// reconcileEarmark applies the earmark rules to the event. It returns the
// (possibly restricted) minAmounts, plus a non-nil Result when the event
// is finished or must be re-queued.
func (p *EventProcessor) reconcileEarmark(ctx context.Context, invoice *entities.Invoice, minAmounts map[uint64]*big.Int) (map[uint64]*big.Int, *Result) {
	earmark, err := p.earmarkRepo.GetActiveByInvoiceID(ctx, invoice.IntentID)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNotFound) {
			result := Failure(p.rebalance.RetryAfterEvent)
			return minAmounts, &result
		}
		return p.planAndExecute(ctx, invoice, minAmounts)
	}

	current, ok := minAmounts[earmark.DesignatedPurchaseChain]
	if ok && current.Cmp(earmark.MinAmount) > 0 {
		if result := p.handleMinAmountIncrease(ctx, invoice, earmark, current); result != nil {
			return minAmounts, result
		}
	}

	switch earmark.Status {
	case entities.EarmarkStatusInitiating, entities.EarmarkStatusPending:
		result := ContinueAfter(p.rebalance.RetryAfterDefer)
		return minAmounts, &result
	case entities.EarmarkStatusReady:
		restricted := map[uint64]*big.Int{}
		if amount, ok := minAmounts[earmark.DesignatedPurchaseChain]; ok {
			restricted[earmark.DesignatedPurchaseChain] = amount
		}
		return restricted, nil
	default:
		return minAmounts, nil
	}
}

// planAndExecute runs the planner and executor for an invoice with no
// active earmark. A created earmark defers the event until funds land.
func (p *EventProcessor) planAndExecute(ctx context.Context, invoice *entities.Invoice, minAmounts map[uint64]*big.Int) (map[uint64]*big.Int, *Result) {
	rebalancePaused, err := p.purchases.IsRebalancePaused(ctx)
	if err == nil && rebalancePaused {
		// Planning is suppressed; the purchase may still go through on
		// whatever inventory is already in place.
		return minAmounts, nil
	}

	balances, err := p.accounting.MarkBalances(ctx)
	if err != nil {
		result := Failure(p.rebalance.RetryAfterEvent)
		return minAmounts, &result
	}

	plan, err := p.planner.Plan(ctx, invoice, minAmounts, balances)
	if err != nil {
		result := Failure(p.rebalance.RetryAfterEvent)
		return minAmounts, &result
	}
	if !plan.CanRebalance {
		return minAmounts, nil
	}

	earmark, err := p.executor.Execute(ctx, invoice, plan)
	if err != nil {
		result := Failure(p.rebalance.RetryAfterEvent)
		return minAmounts, &result
	}
	if earmark != nil {
		result := ContinueAfter(p.rebalance.RetryAfterDefer)
		return minAmounts, &result
	}
	return minAmounts, nil
}

// handleMinAmountIncrease re-plans the shortfall added by a repriced
// invoice. Infeasible increases cancel the earmark.
func (p *EventProcessor) handleMinAmountIncrease(ctx context.Context, invoice *entities.Invoice, earmark *entities.Earmark, current *big.Int) *Result {
	increment := new(big.Int).Sub(current, earmark.MinAmount)
	logger.Info(ctx, "invoice repriced upward",
		zap.String("invoice_id", invoice.IntentID),
		zap.String("recorded", earmark.MinAmount.String()),
		zap.String("current", current.String()))

	balances, err := p.accounting.MarkBalances(ctx)
	if err != nil {
		result := Failure(p.rebalance.RetryAfterEvent)
		return &result
	}

	plan, err := p.planner.Plan(ctx, invoice,
		map[uint64]*big.Int{earmark.DesignatedPurchaseChain: increment}, balances)
	if err != nil {
		result := Failure(p.rebalance.RetryAfterEvent)
		return &result
	}
	if !plan.CanRebalance {
		if err := p.earmarkRepo.UpdateStatus(ctx, earmark.ID, entities.EarmarkStatusCancelled); err != nil {
			logger.Error(ctx, "cancelling unfulfillable earmark failed",
				zap.String("earmark_id", earmark.ID.String()), zap.Error(err))
		}
		result := Failure(p.rebalance.RetryAfterEvent)
		return &result
	}

	if err := p.executeIncrease(ctx, earmark, plan); err != nil {
		result := Failure(p.rebalance.RetryAfterEvent)
		return &result
	}
	if err := p.earmarkRepo.UpdateMinAmount(ctx, earmark.ID, current); err != nil {
		logger.Error(ctx, "recording increased min amount failed",
			zap.String("earmark_id", earmark.ID.String()), zap.Error(err))
	}
	earmark.MinAmount = current
	return nil
}

// executeIncrease submits the incremental operations and links them to the
// existing earmark.
func (p *EventProcessor) executeIncrease(ctx context.Context, earmark *entities.Earmark, plan *entities.RebalancePlan) error {
	executed := make([]executedOperation, 0, len(plan.Operations))
	for _, planned := range plan.Operations {
		done, err := p.executor.executeOperation(ctx, planned)
		if err != nil {
			logger.Error(ctx, "incremental operation failed",
				zap.String("earmark_id", earmark.ID.String()),
				zap.String("bridge", planned.Bridge),
				zap.Error(err))
			continue
		}
		executed = append(executed, *done)
	}
	if len(executed) < len(plan.Operations) {
		return domainerrors.ErrEarmarkInfeasible
	}
	return p.executor.persistOperations(ctx, earmark, executed)
}

func (p *EventProcessor) custodiedBalances(ctx context.Context, invoice *entities.Invoice, minAmounts map[uint64]*big.Int) (map[uint64]*big.Int, error) {
	out := make(map[uint64]*big.Int, len(minAmounts))
	for dest := range minAmounts {
		economy, err := p.hub.GetEconomyData(ctx, dest, invoice.TickerHash)
		if err != nil {
			return nil, err
		}
		// Asset already custodied on the hub plus asset en route from
		// other settlers both reduce what a purchase must supply.
		out[dest] = new(big.Int).Add(economy.Custodied, economy.Incoming)
	}
	return out, nil
}

func (p *EventProcessor) cleanupStaleEarmarks(ctx context.Context, invoiceIDs ...string) {
	for _, id := range invoiceIDs {
		earmark, err := p.earmarkRepo.GetActiveByInvoiceID(ctx, id)
		if err != nil {
			continue
		}
		if err := p.earmarkRepo.UpdateStatus(ctx, earmark.ID, entities.EarmarkStatusCancelled); err != nil {
			logger.Error(ctx, "cancelling stale earmark failed",
				zap.String("earmark_id", earmark.ID.String()), zap.Error(err))
		}
	}
}

func (p *EventProcessor) cleanupCompletedEarmarks(ctx context.Context, invoiceIDs ...string) {
	for _, id := range invoiceIDs {
		earmark, err := p.earmarkRepo.GetActiveByInvoiceID(ctx, id)
		if err != nil || earmark.Status != entities.EarmarkStatusReady {
			continue
		}
		if err := p.earmarkRepo.UpdateStatus(ctx, earmark.ID, entities.EarmarkStatusCompleted); err != nil {
			logger.Error(ctx, "completing earmark failed",
				zap.String("earmark_id", earmark.ID.String()), zap.Error(err))
		}
	}
}
