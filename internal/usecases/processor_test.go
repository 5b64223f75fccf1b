package usecases

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	"mark-operator.backend/pkg/metrics"
)

type processorFixture struct {
	repos     *testRepos
	hub       *fakeHub
	cache     *fakePurchaseCache
	purchaser *fakePurchaser
	chainSvc  *fakeChainService
	adapter   *fakeAdapter
	processor *EventProcessor
}

func newProcessorFixture(t *testing.T, chains map[uint64]config.ChainConfig) *processorFixture {
	t.Helper()
	repos := newTestRepos(t)
	chainSvc := newFakeChainService()
	adapter := &fakeAdapter{kind: bridge.KindCCTPV1} // identity quotes
	registry := bridge.NewRegistry(adapter)

	acct := NewAccounting(chains, chainSvc, repos.earmark, repos.op)
	planner := NewPlanner(chains, parseRoutes(t, singleBridgeRoute), registry, acct)
	executor := NewExecutor(chains, registry, chainSvc, repos.earmark, repos.op, repos.swap, repos.uow, NewQuotaChecker(nil))

	hub := &fakeHub{
		invoice:    testInvoice(),
		minAmounts: map[uint64]*big.Int{testDestChain: e18(1)},
	}
	cache := newFakePurchaseCache()
	purchaser := &fakePurchaser{}

	return &processorFixture{
		repos:     repos,
		hub:       hub,
		cache:     cache,
		purchaser: purchaser,
		chainSvc:  chainSvc,
		adapter:   adapter,
		processor: NewEventProcessor(chains, testRebalanceConfig(), hub, acct, planner, executor,
			repos.earmark, cache, purchaser),
	}
}

func invoiceEvent() Event {
	return Event{ID: "0xinvoice", Type: EventInvoiceEnqueued, EnqueuedAt: time.Now()}
}

func purchasePayload(t *testing.T, enqueued uint64) []byte {
	t.Helper()
	records := []entities.PurchaseRecord{{
		InvoiceID: "0xinvoice",
		Purchase: entities.PurchaseIntent{
			InvoiceID:        "0xinvoice",
			Origin:           testOriginChain,
			DestinationChain: testDestChain,
			Amount:           "1000000",
		},
		TransactionHash:    "0xhash",
		TransactionType:    "purchase",
		HubInvoiceEnqueued: enqueued,
		CachedAt:           time.Now(),
	}}
	payload, err := json.Marshal(records)
	require.NoError(t, err)
	return payload
}

func TestHandleUnknownEventTypeIsInvalid(t *testing.T) {
	f := newProcessorFixture(t, testChains())
	result := f.processor.Handle(context.Background(), Event{ID: "x", Type: "bogus"})
	assert.Equal(t, ResultInvalid, result.Kind)
}

func TestInvoiceGoneUpstreamCancelsStaleEarmark(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	f.hub.invoiceErr = domainerrors.ErrInvoiceNotFound

	earmark := seedEarmark(t, f.repos, entities.EarmarkStatusPending)
	result := f.processor.Handle(ctx, invoiceEvent())
	assert.Equal(t, ResultSuccess, result.Kind)

	got, err := f.repos.earmark.GetByID(ctx, earmark.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EarmarkStatusCancelled, got.Status)
}

func TestInvoiceValidationRejections(t *testing.T) {
	t.Run("too old", func(t *testing.T) {
		f := newProcessorFixture(t, testChains())
		f.hub.invoice.HubInvoiceEnqueued = uint64(time.Now().Add(-7 * time.Hour).Unix())
		result := f.processor.Handle(context.Background(), invoiceEvent())
		assert.Equal(t, ResultInvalid, result.Kind)
	})

	t.Run("owned by operator", func(t *testing.T) {
		f := newProcessorFixture(t, testChains())
		f.hub.invoice.Owner = "0xOWNER10" // case-insensitive match
		result := f.processor.Handle(context.Background(), invoiceEvent())
		assert.Equal(t, ResultInvalid, result.Kind)
	})

	t.Run("xerc20 destination", func(t *testing.T) {
		chains := testChains()
		dest := chains[testDestChain]
		dest.Assets[0].Strategy = StrategyXERC20
		chains[testDestChain] = dest

		f := newProcessorFixture(t, chains)
		result := f.processor.Handle(context.Background(), invoiceEvent())
		assert.Equal(t, ResultInvalid, result.Kind)
	})

	t.Run("no supported destination", func(t *testing.T) {
		f := newProcessorFixture(t, testChains())
		f.hub.invoice.Destinations = []uint64{999}
		result := f.processor.Handle(context.Background(), invoiceEvent())
		assert.Equal(t, ResultInvalid, result.Kind)
	})
}

func TestPurchasePauseFailsEvent(t *testing.T) {
	f := newProcessorFixture(t, testChains())
	f.cache.purchasePaused = true

	result := f.processor.Handle(context.Background(), invoiceEvent())
	assert.Equal(t, ResultFailure, result.Kind)
	assert.Equal(t, time.Minute, result.RetryAfter)
	assert.Zero(t, f.purchaser.calls)
}

func TestCachedPurchaseShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	// Self-sufficient destination, so no rebalance is attempted.
	f.chainSvc.setBalance(testDestChain, "0xusdc10", big.NewInt(2_000_000))
	require.NoError(t, f.cache.SetPurchases(ctx, "0xinvoice", purchasePayload(t, f.hub.invoice.HubInvoiceEnqueued)))

	result := f.processor.Handle(ctx, invoiceEvent())
	assert.Equal(t, ResultSuccess, result.Kind)
	assert.Zero(t, f.purchaser.calls)
}

func TestReadyEarmarkRestrictsPurchaseAndCompletes(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	f.hub.minAmounts = map[uint64]*big.Int{
		testDestChain: e18(1),
		999:           e18(1),
	}
	earmark := seedEarmark(t, f.repos, entities.EarmarkStatusReady)
	f.chainSvc.setBalance(testDestChain, "0xusdc10", big.NewInt(2_000_000))
	f.purchaser.records = []entities.PurchaseRecord{{InvoiceID: "0xinvoice"}}

	result := f.processor.Handle(ctx, invoiceEvent())
	assert.Equal(t, ResultSuccess, result.Kind)

	// The purchase was restricted to the designated chain.
	require.Equal(t, 1, f.purchaser.calls)
	assert.Len(t, f.purchaser.minAmounts, 1)
	assert.Contains(t, f.purchaser.minAmounts, testDestChain)

	// Records cached, earmark retired.
	cached, err := f.cache.GetPurchases(ctx, "0xinvoice")
	require.NoError(t, err)
	assert.NotNil(t, cached)
	got, err := f.repos.earmark.GetByID(ctx, earmark.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EarmarkStatusCompleted, got.Status)
}

func TestPendingEarmarkDefersEvent(t *testing.T) {
	f := newProcessorFixture(t, testChains())
	seedEarmark(t, f.repos, entities.EarmarkStatusPending)

	result := f.processor.Handle(context.Background(), invoiceEvent())
	assert.Equal(t, ResultContinue, result.Kind)
	assert.Equal(t, 10*time.Second, result.RetryAfter)
	assert.Zero(t, f.purchaser.calls)
}

func TestRebalancePlannedWhenInventoryShort(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	// Rich origin, empty destination: the invoice needs a rebalance.
	f.chainSvc.setBalance(testOriginChain, "0xusdc1", big.NewInt(100_000_000))

	result := f.processor.Handle(ctx, invoiceEvent())
	assert.Equal(t, ResultContinue, result.Kind)
	assert.Equal(t, 1, f.adapter.sendCalls)

	earmark, err := f.repos.earmark.GetActiveByInvoiceID(ctx, "0xinvoice")
	require.NoError(t, err)
	assert.Equal(t, entities.EarmarkStatusPending, earmark.Status)
	assert.Equal(t, e18(1), earmark.MinAmount)
}

func TestRebalancePauseSkipsPlanning(t *testing.T) {
	f := newProcessorFixture(t, testChains())
	f.cache.rebalancePaused = true
	f.chainSvc.setBalance(testOriginChain, "0xusdc1", big.NewInt(100_000_000))

	// Nothing satisfiable without a rebalance, so the purchase returns
	// empty and the event re-queues.
	result := f.processor.Handle(context.Background(), invoiceEvent())
	assert.Equal(t, ResultFailure, result.Kind)
	assert.Equal(t, 10*time.Second, result.RetryAfter)
	assert.Zero(t, f.adapter.sendCalls)
}

func TestMinAmountIncreaseReplansShortfall(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	earmark := seedEarmark(t, f.repos, entities.EarmarkStatusPending)

	repriced := new(big.Int).Add(e18(1), new(big.Int).Div(e18(1), big.NewInt(5))) // 1.2
	f.hub.minAmounts = map[uint64]*big.Int{testDestChain: repriced}
	f.chainSvc.setBalance(testOriginChain, "0xusdc1", big.NewInt(100_000_000))

	result := f.processor.Handle(ctx, invoiceEvent())
	// Earmark is still PENDING after the top-up, so the event defers.
	assert.Equal(t, ResultContinue, result.Kind)
	assert.Equal(t, 1, f.adapter.sendCalls)

	got, err := f.repos.earmark.GetByID(ctx, earmark.ID)
	require.NoError(t, err)
	assert.Equal(t, repriced, got.MinAmount)

	ops, err := f.repos.op.ListByEarmark(ctx, earmark.ID)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, entities.OperationStatusPending, ops[0].Status)
}

func TestMinAmountIncreaseInfeasibleCancelsEarmark(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	earmark := seedEarmark(t, f.repos, entities.EarmarkStatusPending)
	// No origin inventory: the increment cannot be covered.
	f.hub.minAmounts = map[uint64]*big.Int{testDestChain: e18(2)}

	result := f.processor.Handle(ctx, invoiceEvent())
	assert.Equal(t, ResultFailure, result.Kind)

	got, err := f.repos.earmark.GetByID(ctx, earmark.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EarmarkStatusCancelled, got.Status)
}

func TestSettlementClearsCacheAndObservesClearance(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, testChains())
	enqueued := uint64(time.Now().Add(-5 * time.Minute).Unix())
	require.NoError(t, f.cache.SetPurchases(ctx, "0xinvoice", purchasePayload(t, enqueued)))

	result := f.processor.Handle(ctx, Event{ID: "0xinvoice", Type: EventSettlementEnqueued})
	assert.Equal(t, ResultSuccess, result.Kind)
	assert.Equal(t, []string{"0xinvoice"}, f.cache.removed)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.PurchaseClearanceDuration), 1)
}

func TestSettlementWithoutCacheIsNoop(t *testing.T) {
	f := newProcessorFixture(t, testChains())
	result := f.processor.Handle(context.Background(), Event{ID: "0xother", Type: EventSettlementEnqueued})
	assert.Equal(t, ResultSuccess, result.Kind)
	assert.Empty(t, f.cache.removed)
}
