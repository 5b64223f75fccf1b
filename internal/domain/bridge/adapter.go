package bridge

import (
	"context"
	"math/big"
	"time"

	"mark-operator.backend/internal/domain/entities"
)

// Kind identifies a bridge or exchange integration. The set is closed from
// the operator's point of view but opaque to the orchestration core.
type Kind string

const (
	KindAcross   Kind = "across"
	KindBinance  Kind = "binance"
	KindCoinbase Kind = "coinbase"
	KindKraken   Kind = "kraken"
	KindNear     Kind = "near"
	KindCCTPV1   Kind = "cctpv1"
	KindCCTPV2   Kind = "cctpv2"
	KindCowSwap  Kind = "cowswap"
	KindStargate Kind = "stargate"
	KindMantle   Kind = "mantle"
	KindLinea    Kind = "linea"
	KindZircuit  Kind = "zircuit"
	KindZksync   Kind = "zksync"
	KindPendle   Kind = "pendle"
	KindCCIP     Kind = "ccip"
	KindTacInner Kind = "tacinner"
)

// Memo tags a transaction so the core knows which receipt to persist as the
// origin receipt and which ones are prelude.
type Memo string

const (
	MemoApproval  Memo = "Approval"
	MemoUnwrap    Memo = "Unwrap"
	MemoWrap      Memo = "Wrap"
	MemoRebalance Memo = "Rebalance"
)

// TxRequest is an unsigned transaction payload for a specific chain.
type TxRequest struct {
	ChainID uint64
	To      string
	Data    []byte
	Value   *big.Int
}

// MemoTx pairs a transaction with its semantic tag. EffectiveAmount is set
// by adapters that cap or round the requested amount; when present it
// replaces the planned amount for downstream accounting.
type MemoTx struct {
	Memo            Memo
	Tx              *TxRequest
	EffectiveAmount *big.Int
}

// Adapter is the uniform contract every bridge and CEX integration
// satisfies. Amounts are in the origin asset's native decimals.
type Adapter interface {
	Kind() Kind

	// Quote returns the expected received amount on the destination.
	Quote(ctx context.Context, amount *big.Int, route entities.Route) (*big.Int, error)

	// Send builds the origin-chain transactions, in submission order. Only
	// the Rebalance-memo receipt is persisted as the origin receipt.
	Send(ctx context.Context, sender, recipient string, amount *big.Int, route entities.Route) ([]MemoTx, error)

	// ReadyOnDestination probes whether funds have arrived. It is
	// idempotent and must not advance any external state.
	ReadyOnDestination(ctx context.Context, amount *big.Int, route entities.Route, originReceipt *entities.TxReceipt) (bool, error)

	// DestinationCallback returns the destination-side finishing
	// transaction, or nil when none is needed. Idempotent on the adapter's
	// own side.
	DestinationCallback(ctx context.Context, route entities.Route, originReceipt *entities.TxReceipt) (*MemoTx, error)
}

// ExchangeInfo bounds a CEX swap pair in native units of the from asset.
type ExchangeInfo struct {
	MinAmount *big.Int
	MaxAmount *big.Int
}

// SwapQuote is a priced CEX conversion offer.
type SwapQuote struct {
	QuoteID    string
	FromSymbol string
	ToSymbol   string
	FromAmount *big.Int
	ToAmount   *big.Int
	Rate       string
	ValidUntil time.Time
}

// SwapOrderStatus is the CEX-side order state.
type SwapOrderStatus string

const (
	SwapOrderPending SwapOrderStatus = "pending"
	SwapOrderSuccess SwapOrderStatus = "success"
	SwapOrderFailed  SwapOrderStatus = "failed"
)

// SwapResult reports an accepted or polled CEX order.
type SwapResult struct {
	OrderID string
	Status  SwapOrderStatus
}

// SwapAdapter is the optional capability interface for adapters that can
// convert between asset symbols (CEX routes). The planner discovers it
// with a runtime type assertion.
type SwapAdapter interface {
	Adapter

	SupportsSwap(fromSymbol, toSymbol string) bool
	SwapExchangeInfo(ctx context.Context, fromSymbol, toSymbol string) (*ExchangeInfo, error)
	SwapQuote(ctx context.Context, fromSymbol, toSymbol string, amount *big.Int) (*SwapQuote, error)
	ExecuteSwap(ctx context.Context, quote *SwapQuote) (*SwapResult, error)
	SwapStatus(ctx context.Context, orderID string) (*SwapResult, error)
}
