package usecases

import (
	"context"
	"math/big"
	"sort"

	"go.uber.org/zap"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/bridge"
	"mark-operator.backend/internal/domain/entities"
	"mark-operator.backend/pkg/logger"
)

// Planner chooses, for a short invoice, the destination chain and the set
// of bridge operations that satisfy its minAmount within slippage budgets.
// It quotes adapters but persists nothing.
type Planner struct {
	chains     map[uint64]config.ChainConfig
	routes     []config.RouteConfig
	registry   *bridge.Registry
	accounting *Accounting
}

// NewPlanner creates a new planner
func NewPlanner(
	chains map[uint64]config.ChainConfig,
	routes []config.RouteConfig,
	registry *bridge.Registry,
	accounting *Accounting,
) *Planner {
	return &Planner{
		chains:     chains,
		routes:     routes,
		registry:   registry,
		accounting: accounting,
	}
}

type candidatePlan struct {
	destination uint64
	total       *big.Int
	operations  []entities.PlannedOperation
}

// Plan evaluates every candidate destination of the invoice and returns
// the cheapest feasible rebalance, or CanRebalance=false.
func (p *Planner) Plan(
	ctx context.Context,
	invoice *entities.Invoice,
	minAmounts map[uint64]*big.Int,
	balances map[string]map[uint64]*big.Int,
) (*entities.RebalancePlan, error) {
	var candidates []candidatePlan

	for _, dest := range invoice.Destinations {
		need, ok := minAmounts[dest]
		if !ok || need.Sign() == 0 {
			continue
		}
		candidate, err := p.planDestination(ctx, invoice, dest, need, balances)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}

	if len(candidates) == 0 {
		return &entities.RebalancePlan{CanRebalance: false}, nil
	}

	// Fewest operations first, then smallest total.
	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].operations) != len(candidates[j].operations) {
			return len(candidates[i].operations) < len(candidates[j].operations)
		}
		return candidates[i].total.Cmp(candidates[j].total) < 0
	})

	best := candidates[0]
	return &entities.RebalancePlan{
		CanRebalance:     true,
		DestinationChain: best.destination,
		TotalAmount:      best.total,
		Operations:       best.operations,
	}, nil
}

func (p *Planner) planDestination(
	ctx context.Context,
	invoice *entities.Invoice,
	dest uint64,
	need *big.Int,
	balances map[string]map[uint64]*big.Int,
) (*candidatePlan, error) {
	destChain, ok := p.chains[dest]
	if !ok {
		return nil, nil
	}
	destAsset, ok := destChain.AssetByTicker(invoice.TickerHash)
	if !ok {
		return nil, nil
	}

	haveHere, err := p.accounting.AvailableBalance(ctx, dest, invoice.TickerHash, tickerBalance(balances, invoice.TickerHash, dest))
	if err != nil {
		return nil, err
	}
	if haveHere.Cmp(need) >= 0 {
		// Self-sufficient: a purchase needs no rebalance here.
		return nil, nil
	}
	shortfall := new(big.Int).Sub(need, haveHere)

	routes, origins, err := p.routesByOriginBalance(ctx, invoice.TickerHash, dest, balances)
	if err != nil {
		return nil, err
	}

	tolerance := RoundingTolerance(destAsset.Decimals)
	var operations []entities.PlannedOperation

	for i, route := range routes {
		if shortfall.Cmp(tolerance) <= 0 {
			break
		}
		op := p.planRoute(ctx, route, dest, destAsset, shortfall, origins[i])
		if op == nil {
			continue
		}
		operations = append(operations, *op)
		shortfall.Sub(shortfall, op.Received18)
	}

	if shortfall.Cmp(tolerance) > 0 {
		logger.Debug(ctx, "destination infeasible",
			zap.String("invoice_id", invoice.IntentID),
			zap.Uint64("destination", dest),
			zap.String("uncovered", shortfall.String()))
		return nil, nil
	}

	return &candidatePlan{
		destination: dest,
		total:       new(big.Int).Set(need),
		operations:  operations,
	}, nil
}

// routesByOriginBalance returns the routes into dest ordered by descending
// available origin balance, paired with those balances (18-dec, after the
// route's configured reserve).
func (p *Planner) routesByOriginBalance(
	ctx context.Context,
	tickerHash string,
	dest uint64,
	balances map[string]map[uint64]*big.Int,
) ([]config.RouteConfig, []*big.Int, error) {
	type scored struct {
		route config.RouteConfig
		avail *big.Int
	}
	var entries []scored

	for _, route := range p.routes {
		if route.Destination != dest {
			continue
		}
		originChain, ok := p.chains[route.Origin]
		if !ok {
			continue
		}
		originAsset, ok := originChain.AssetByAddress(route.Asset)
		if !ok || originAsset.TickerHash != tickerHash {
			continue
		}

		avail, err := p.accounting.AvailableBalance(ctx, route.Origin, tickerHash, tickerBalance(balances, tickerHash, route.Origin))
		if err != nil {
			return nil, nil, err
		}
		avail = new(big.Int).Sub(avail, route.Reserve())
		if avail.Sign() <= 0 {
			continue
		}
		entries = append(entries, scored{route: route, avail: avail})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].avail.Cmp(entries[j].avail) > 0
	})

	routes := make([]config.RouteConfig, len(entries))
	avails := make([]*big.Int, len(entries))
	for i, e := range entries {
		routes[i] = e.route
		avails[i] = e.avail
	}
	return routes, avails, nil
}

// planRoute walks the route's bridge preferences in order and returns the
// first acceptable operation, or nil.
func (p *Planner) planRoute(
	ctx context.Context,
	route config.RouteConfig,
	dest uint64,
	destAsset config.AssetConfig,
	shortfall *big.Int,
	availableOrigin *big.Int,
) *entities.PlannedOperation {
	originChain := p.chains[route.Origin]
	originAsset, _ := originChain.AssetByAddress(route.Asset)

	for i, pref := range route.Preferences {
		budget := route.SlippagesDbps[i]

		var op *entities.PlannedOperation
		if route.IsSwapRoute() {
			op = p.planSwapPreference(ctx, route, bridge.Kind(pref), budget, dest, destAsset, originAsset, availableOrigin)
		} else {
			op = p.planBridgePreference(ctx, route, bridge.Kind(pref), budget, dest, destAsset, originAsset, shortfall, availableOrigin)
		}
		if op != nil {
			return op
		}
	}
	return nil
}

func (p *Planner) planBridgePreference(
	ctx context.Context,
	route config.RouteConfig,
	kind bridge.Kind,
	budget uint32,
	dest uint64,
	destAsset config.AssetConfig,
	originAsset config.AssetConfig,
	shortfall *big.Int,
	availableOrigin *big.Int,
) *entities.PlannedOperation {
	adapter, err := p.registry.Get(kind)
	if err != nil {
		return nil
	}

	send18 := GrossUpForSlippage(shortfall, budget)
	if send18.Cmp(availableOrigin) > 0 {
		send18 = new(big.Int).Set(availableOrigin)
	}
	sendNative := ToNative(send18, originAsset.Decimals)
	if sendNative.Sign() == 0 {
		return nil
	}
	// Re-derive the 18-dec amount from the truncated native value so the
	// slippage check compares what will actually be sent.
	send18 = To18(sendNative, originAsset.Decimals)

	quoted, err := adapter.Quote(ctx, sendNative, entities.Route{
		Origin:      route.Origin,
		Destination: dest,
		Asset:       route.Asset,
	})
	if err != nil {
		logger.Debug(ctx, "bridge quote rejected",
			zap.String("bridge", string(kind)),
			zap.Uint64("origin", route.Origin),
			zap.Uint64("destination", dest),
			zap.Error(err))
		return nil
	}

	received18 := To18(quoted, destAsset.Decimals)
	observed := SlippageDbps(send18, received18)
	if observed > budget {
		return nil
	}

	return &entities.PlannedOperation{
		OriginChainID:      route.Origin,
		DestinationChainID: dest,
		TickerHash:         originAsset.TickerHash,
		Bridge:             string(kind),
		Asset:              route.Asset,
		AmountNative:       sendNative,
		Amount18:           send18,
		Received18:         received18,
		SlippageDbps:       budget,
	}
}

func (p *Planner) planSwapPreference(
	ctx context.Context,
	route config.RouteConfig,
	kind bridge.Kind,
	budget uint32,
	dest uint64,
	destAsset config.AssetConfig,
	originAsset config.AssetConfig,
	availableOrigin *big.Int,
) *entities.PlannedOperation {
	swapper, ok := p.registry.Swap(kind)
	if !ok {
		return nil
	}
	destChain := p.chains[dest]
	toAsset, ok := destChain.AssetByAddress(route.DestinationAsset)
	if !ok {
		return nil
	}
	if !swapper.SupportsSwap(originAsset.Symbol, toAsset.Symbol) {
		return nil
	}

	availNative := ToNative(availableOrigin, originAsset.Decimals)

	info, err := swapper.SwapExchangeInfo(ctx, originAsset.Symbol, toAsset.Symbol)
	if err != nil {
		logger.Debug(ctx, "swap exchange info rejected",
			zap.String("bridge", string(kind)), zap.Error(err))
		return nil
	}
	// The platform minimum is doubled to absorb withdrawal fees.
	gate := new(big.Int).Mul(info.MinAmount, big.NewInt(2))
	if route.MinSwapAmount().Cmp(gate) > 0 {
		gate = route.MinSwapAmount()
	}
	if availNative.Cmp(gate) < 0 {
		return nil
	}

	quote, err := swapper.SwapQuote(ctx, originAsset.Symbol, toAsset.Symbol, availNative)
	if err != nil {
		logger.Debug(ctx, "swap quote rejected",
			zap.String("bridge", string(kind)), zap.Error(err))
		return nil
	}

	bridged, err := swapper.Quote(ctx, quote.ToAmount, entities.Route{
		Origin:      route.Origin,
		Destination: dest,
		Asset:       route.DestinationAsset,
	})
	if err != nil {
		logger.Debug(ctx, "swap bridge quote rejected",
			zap.String("bridge", string(kind)), zap.Error(err))
		return nil
	}

	avail18 := To18(availNative, originAsset.Decimals)
	swapped18 := To18(quote.ToAmount, toAsset.Decimals)
	bridged18 := To18(bridged, destAsset.Decimals)

	combined := SlippageDbps(avail18, bridged18)
	if combined > budget {
		return nil
	}

	return &entities.PlannedOperation{
		OriginChainID:      route.Origin,
		DestinationChainID: dest,
		TickerHash:         originAsset.TickerHash,
		Bridge:             string(kind),
		Asset:              route.Asset,
		DestinationAsset:   route.DestinationAsset,
		AmountNative:       availNative,
		Amount18:           avail18,
		Received18:         bridged18,
		SlippageDbps:       budget,
		Swap: &entities.SwapPlan{
			Platform:           string(kind),
			FromSymbol:         originAsset.Symbol,
			ToSymbol:           toAsset.Symbol,
			FromAsset:          route.Asset,
			ToAsset:            route.DestinationAsset,
			ExpectedFromAmount: availNative,
			ExpectedToAmount:   quote.ToAmount,
			SwapSlippageDbps:   SlippageDbps(avail18, swapped18),
			BridgeSlippageDbps: SlippageDbps(swapped18, bridged18),
			TotalBudgetDbps:    budget,
			QuoteID:            quote.QuoteID,
			ExpectedRate:       quote.Rate,
		},
	}
}

func tickerBalance(balances map[string]map[uint64]*big.Int, tickerHash string, chainID uint64) *big.Int {
	if byChain, ok := balances[tickerHash]; ok {
		if v, ok := byChain[chainID]; ok {
			return v
		}
	}
	return big.NewInt(0)
}
