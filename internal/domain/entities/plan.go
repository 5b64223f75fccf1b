package entities

import "math/big"

// SwapPlan carries the CEX leg of a planned swap_and_bridge operation.
type SwapPlan struct {
	Platform           string
	FromSymbol         string
	ToSymbol           string
	FromAsset          string
	ToAsset            string
	ExpectedFromAmount *big.Int // native decimals, origin asset
	ExpectedToAmount   *big.Int // native decimals, destination asset
	SwapSlippageDbps   uint32
	BridgeSlippageDbps uint32
	TotalBudgetDbps    uint32
	QuoteID            string
	ExpectedRate       string
}

// PlannedOperation is one bridge (or swap+bridge) movement chosen by the
// planner. Amounts are kept in both representations: the executor submits
// native amounts, accounting runs on 18-dec units.
type PlannedOperation struct {
	OriginChainID      uint64
	DestinationChainID uint64
	TickerHash         string
	Bridge             string
	Asset              string
	DestinationAsset   string
	AmountNative       *big.Int
	Amount18           *big.Int
	Received18         *big.Int
	SlippageDbps       uint32
	Swap               *SwapPlan // nil for same-asset routes
}

// RebalancePlan is the planner's answer for one invoice.
type RebalancePlan struct {
	CanRebalance     bool
	DestinationChain uint64
	TotalAmount      *big.Int // 18-dec: the destination minAmount being satisfied
	Operations       []PlannedOperation
}
