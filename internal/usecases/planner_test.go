package usecases

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	domainerrors "mark-operator.backend/internal/domain/errors"
)

func newTestPlanner(t *testing.T, routesJSON string, adapters ...bridge.Adapter) *Planner {
	t.Helper()
	repos := newTestRepos(t)
	acct := NewAccounting(testChains(), newFakeChainService(), repos.earmark, repos.op)
	return NewPlanner(testChains(), parseRoutes(t, routesJSON), bridge.NewRegistry(adapters...), acct)
}

const singleBridgeRoute = `[{"origin":1,"destination":10,"asset":"0xusdc1","preferences":["cctpv1"],"slippagesDbps":[1000]}]`

func TestPlanGrossesUpShortfallWithinBudget(t *testing.T) {
	adapter := &fakeAdapter{
		kind:    bridge.KindCCTPV1,
		quoteFn: func(amount *big.Int) (*big.Int, error) { return big.NewInt(1_000_001), nil },
	}
	planner := newTestPlanner(t, singleBridgeRoute, adapter)

	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: e18(100), testDestChain: big.NewInt(0)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(1)}, balances)
	require.NoError(t, err)

	require.True(t, plan.CanRebalance)
	assert.Equal(t, testDestChain, plan.DestinationChain)
	assert.Equal(t, e18(1), plan.TotalAmount)
	require.Len(t, plan.Operations, 1)

	op := plan.Operations[0]
	// Gross-up of 1e18 at a 1000 dBps budget, truncated to 6 decimals.
	assert.Equal(t, big.NewInt(1_000_100), op.AmountNative)
	assert.Equal(t, "cctpv1", op.Bridge)
	assert.Equal(t, uint32(1000), op.SlippageDbps)
	assert.Nil(t, op.Swap)
}

func TestPlanFallsBackToNextPreference(t *testing.T) {
	across := &fakeAdapter{
		kind:    bridge.KindAcross,
		quoteFn: func(amount *big.Int) (*big.Int, error) { return nil, domainerrors.ErrAdapterRateLimited },
	}
	cctp := &fakeAdapter{
		kind:    bridge.KindCCTPV1,
		quoteFn: func(amount *big.Int) (*big.Int, error) { return big.NewInt(1_000_001), nil },
	}
	routes := `[{"origin":1,"destination":10,"asset":"0xusdc1","preferences":["across","cctpv1"],"slippagesDbps":[500,1000]}]`
	planner := newTestPlanner(t, routes, across, cctp)

	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: e18(100), testDestChain: big.NewInt(0)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(1)}, balances)
	require.NoError(t, err)

	require.True(t, plan.CanRebalance)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, "cctpv1", plan.Operations[0].Bridge)
	assert.Equal(t, 1, across.quoteCalls)
}

func TestPlanSkipsSelfSufficientDestination(t *testing.T) {
	adapter := &fakeAdapter{kind: bridge.KindCCTPV1}
	planner := newTestPlanner(t, singleBridgeRoute, adapter)

	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: e18(100), testDestChain: e18(2)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(1)}, balances)
	require.NoError(t, err)

	assert.False(t, plan.CanRebalance)
	assert.Zero(t, adapter.quoteCalls)
}

func TestPlanCapsSendAtAvailableOrigin(t *testing.T) {
	adapter := &fakeAdapter{kind: bridge.KindCCTPV1} // identity quote
	planner := newTestPlanner(t, singleBridgeRoute, adapter)

	half := new(big.Int).Div(e18(1), big.NewInt(2))
	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: half, testDestChain: big.NewInt(0)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(1)}, balances)
	require.NoError(t, err)

	// Half the shortfall is all the origin holds; the destination stays
	// uncovered and the plan is rejected rather than over-drafted.
	assert.False(t, plan.CanRebalance)
	require.Equal(t, 1, adapter.quoteCalls)
}

func TestPlanRejectsQuoteOverBudget(t *testing.T) {
	adapter := &fakeAdapter{
		kind:    bridge.KindCCTPV1,
		quoteFn: func(amount *big.Int) (*big.Int, error) { return big.NewInt(989_000), nil },
	}
	planner := newTestPlanner(t, singleBridgeRoute, adapter)

	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: e18(100), testDestChain: big.NewInt(0)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(1)}, balances)
	require.NoError(t, err)

	assert.False(t, plan.CanRebalance)
}

func TestPlanSwapRouteCarriesSlippageDecomposition(t *testing.T) {
	chains := testChains()
	dest := chains[testDestChain]
	dest.Assets = append(dest.Assets, assetUSDT())
	chains[testDestChain] = dest

	swapper := &fakeSwapAdapter{
		fakeAdapter: fakeAdapter{kind: bridge.KindBinance},
		supports:    true,
		swapQuoteFn: func(amount *big.Int) (*bridge.SwapQuote, error) {
			// 0.1% conversion loss.
			to := new(big.Int).Mul(amount, big.NewInt(999))
			to.Div(to, big.NewInt(1000))
			return &bridge.SwapQuote{
				QuoteID:    "q1",
				FromSymbol: "USDC",
				ToSymbol:   "USDT",
				FromAmount: new(big.Int).Set(amount),
				ToAmount:   to,
				Rate:       "0.999",
			}, nil
		},
	}

	repos := newTestRepos(t)
	acct := NewAccounting(chains, newFakeChainService(), repos.earmark, repos.op)
	routes := `[{"origin":1,"destination":10,"asset":"0xusdc1","destinationAsset":"0xusdt10","preferences":["binance"],"slippagesDbps":[100000]}]`
	planner := NewPlanner(chains, parseRoutes(t, routes), bridge.NewRegistry(swapper), acct)

	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: e18(10), testDestChain: big.NewInt(0)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(5)}, balances)
	require.NoError(t, err)

	require.True(t, plan.CanRebalance)
	require.Len(t, plan.Operations, 1)
	op := plan.Operations[0]
	require.NotNil(t, op.Swap)

	// The swap consumes the full origin balance, not just the shortfall.
	assert.Equal(t, big.NewInt(10_000_000), op.AmountNative)
	assert.Equal(t, "USDC", op.Swap.FromSymbol)
	assert.Equal(t, "USDT", op.Swap.ToSymbol)
	assert.Equal(t, uint32(10_000), op.Swap.SwapSlippageDbps) // 0.1% of 1e7
	assert.Equal(t, uint32(0), op.Swap.BridgeSlippageDbps)
	assert.Equal(t, uint32(100_000), op.Swap.TotalBudgetDbps)
	assert.Equal(t, "q1", op.Swap.QuoteID)
}

func TestPlanSwapRouteBelowMinimumRejected(t *testing.T) {
	chains := testChains()
	dest := chains[testDestChain]
	dest.Assets = append(dest.Assets, assetUSDT())
	chains[testDestChain] = dest

	swapper := &fakeSwapAdapter{
		fakeAdapter: fakeAdapter{kind: bridge.KindBinance},
		supports:    true,
		info:        &bridge.ExchangeInfo{MinAmount: big.NewInt(20_000_000), MaxAmount: e18(1000)},
	}

	repos := newTestRepos(t)
	acct := NewAccounting(chains, newFakeChainService(), repos.earmark, repos.op)
	routes := `[{"origin":1,"destination":10,"asset":"0xusdc1","destinationAsset":"0xusdt10","preferences":["binance"],"slippagesDbps":[100000]}]`
	planner := NewPlanner(chains, parseRoutes(t, routes), bridge.NewRegistry(swapper), acct)

	// 10 USDC held, but the doubled platform minimum is 40 USDC.
	balances := map[string]map[uint64]*big.Int{
		testTicker: {testOriginChain: e18(10), testDestChain: big.NewInt(0)},
	}
	plan, err := planner.Plan(context.Background(), testInvoice(), map[uint64]*big.Int{testDestChain: e18(5)}, balances)
	require.NoError(t, err)

	assert.False(t, plan.CanRebalance)
}

func assetUSDT() config.AssetConfig {
	return config.AssetConfig{Symbol: "USDT", Address: "0xusdt10", Decimals: 6, TickerHash: "0xtickerusdt"}
}
