package entities

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EarmarkStatus represents the lifecycle state of an earmark
type EarmarkStatus string

const (
	EarmarkStatusInitiating EarmarkStatus = "INITIATING"
	EarmarkStatusPending    EarmarkStatus = "PENDING"
	EarmarkStatusReady      EarmarkStatus = "READY"
	EarmarkStatusCompleted  EarmarkStatus = "COMPLETED"
	EarmarkStatusCancelled  EarmarkStatus = "CANCELLED"
	EarmarkStatusFailed     EarmarkStatus = "FAILED"
)

// ActiveEarmarkStatuses are the states covered by the unique active
// constraint: at most one earmark per invoice may be in one of them.
var ActiveEarmarkStatuses = []EarmarkStatus{
	EarmarkStatusInitiating,
	EarmarkStatusPending,
	EarmarkStatusReady,
}

// IsActive reports whether the status participates in the unique active set.
func (s EarmarkStatus) IsActive() bool {
	switch s {
	case EarmarkStatusInitiating, EarmarkStatusPending, EarmarkStatusReady:
		return true
	}
	return false
}

// Earmark is a persistent reservation of destination-chain funds for a
// specific invoice. MinAmount is in 18-decimal canonical units and may be
// adjusted while the earmark is active.
type Earmark struct {
	ID                      uuid.UUID     `json:"id"`
	InvoiceID               string        `json:"invoiceId"`
	DesignatedPurchaseChain uint64        `json:"designatedPurchaseChain"`
	TickerHash              string        `json:"tickerHash"`
	MinAmount               *big.Int      `json:"minAmount"`
	Status                  EarmarkStatus `json:"status"`
	CreatedAt               time.Time     `json:"createdAt"`
	UpdatedAt               time.Time     `json:"updatedAt"`
}
