package entities

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// SwapStatus represents the CEX swap sub-state-machine
type SwapStatus string

const (
	SwapStatusPendingDeposit   SwapStatus = "pending_deposit"
	SwapStatusDepositConfirmed SwapStatus = "deposit_confirmed"
	SwapStatusProcessing       SwapStatus = "processing"
	SwapStatusCompleted        SwapStatus = "completed"
	SwapStatusFailed           SwapStatus = "failed"
	SwapStatusRecovering       SwapStatus = "recovering"
)

// Recovery reasons recorded in SwapMetadata.FailureReason.
const (
	// SwapRecoveryReasonSlippage is recorded when a fresh quote pushes the
	// estimated total slippage past the planned budget.
	SwapRecoveryReasonSlippage = "total_slippage_would_exceed_budget"
	// SwapRecoveryReasonOrderFailed is recorded when the exchange rejects
	// or fails an accepted order.
	SwapRecoveryReasonOrderFailed = "swap_order_failed"
)

// SwapMetadata carries the planning-time slippage decomposition.
type SwapMetadata struct {
	FromSymbol         string `json:"fromSymbol"`
	ToSymbol           string `json:"toSymbol"`
	ExpectedFromAmount string `json:"expectedFromAmount"`
	ExpectedToAmount   string `json:"expectedToAmount"`
	SwapSlippageDbps   uint32 `json:"swapSlippageDbps"`
	BridgeSlippageDbps uint32 `json:"bridgeSlippageDbps"`
	TotalBudgetDbps    uint32 `json:"totalBudgetDbps"`
	FailureReason      string `json:"failureReason,omitempty"`
}

// SwapOperation is the CEX leg of a swap_and_bridge rebalance operation.
// Exactly one exists per swap_and_bridge parent.
type SwapOperation struct {
	ID                   uuid.UUID     `json:"id"`
	RebalanceOperationID uuid.UUID     `json:"rebalanceOperationId"`
	Platform             string        `json:"platform"`
	FromAsset            string        `json:"fromAsset"`
	ToAsset              string        `json:"toAsset"`
	FromAmount           *big.Int      `json:"fromAmount"`
	ToAmount             *big.Int      `json:"toAmount"`
	ExpectedRate         string        `json:"expectedRate"`
	ActualRate           null.String   `json:"actualRate,omitempty"`
	Status               SwapStatus    `json:"status"`
	OrderID              null.String   `json:"orderId,omitempty"`
	QuoteID              null.String   `json:"quoteId,omitempty"`
	Metadata             *SwapMetadata `json:"metadata,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}
