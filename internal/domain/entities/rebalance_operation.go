package entities

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// OperationStatus represents the state of a rebalance operation
type OperationStatus string

const (
	OperationStatusPending          OperationStatus = "PENDING"
	OperationStatusAwaitingCallback OperationStatus = "AWAITING_CALLBACK"
	OperationStatusCompleted        OperationStatus = "COMPLETED"
	OperationStatusFailed           OperationStatus = "FAILED"
	OperationStatusExpired          OperationStatus = "EXPIRED"
)

// IsTerminal reports whether the status is a one-way latch.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusExpired:
		return true
	}
	return false
}

// OperationType distinguishes plain bridging from CEX swap routes
type OperationType string

const (
	OperationTypeBridge        OperationType = "bridge"
	OperationTypeSwapAndBridge OperationType = "swap_and_bridge"
)

// TxReceipt is the subset of an on-chain receipt the operator persists.
type TxReceipt struct {
	TransactionHash string `json:"transactionHash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ChainID         uint64 `json:"chainId"`
	BlockNumber     uint64 `json:"blockNumber"`
	Status          uint64 `json:"status"`
}

// RebalanceOperation records one origin→destination fund movement.
// Amount is in the origin asset's native decimals: the effective post-cap
// value actually bridged. A row is written only after the origin receipt
// is confirmed, so Transactions always carries the origin entry.
type RebalanceOperation struct {
	ID                 uuid.UUID             `json:"id"`
	EarmarkID          *uuid.UUID            `json:"earmarkId,omitempty"` // nil for non-invoice-driven rebalances
	OriginChainID      uint64                `json:"originChainId"`
	DestinationChainID uint64                `json:"destinationChainId"`
	TickerHash         string                `json:"tickerHash"`
	Amount             *big.Int              `json:"amount"`
	Slippage           uint32                `json:"slippage"` // dBps budget from planning
	Status             OperationStatus       `json:"status"`
	Bridge             string                `json:"bridge"`
	Recipient          string                `json:"recipient"`
	Transactions       map[uint64]*TxReceipt `json:"transactions"`
	OperationType      OperationType         `json:"operationType"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

// OriginReceipt returns the persisted origin-chain receipt, or nil.
func (op *RebalanceOperation) OriginReceipt() *TxReceipt {
	if op.Transactions == nil {
		return nil
	}
	return op.Transactions[op.OriginChainID]
}
