package entities

import (
	"math/big"
	"time"
)

// Invoice is the hub-side instruction to settle a cross-chain intent.
type Invoice struct {
	IntentID           string   `json:"intent_id"`
	Owner              string   `json:"owner"`
	TickerHash         string   `json:"ticker_hash"`
	Amount             *big.Int `json:"amount"`
	Origin             uint64   `json:"origin"`
	Destinations       []uint64 `json:"destinations"`
	HubInvoiceEnqueued uint64   `json:"hub_invoice_enqueued_timestamp"` // unix seconds
	HubStatus          string   `json:"hub_status"`
}

// Age returns how long ago the invoice was enqueued on the hub.
func (i *Invoice) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(int64(i.HubInvoiceEnqueued), 0))
}

// PurchaseIntent is the settlement intent created for one destination.
type PurchaseIntent struct {
	InvoiceID        string `json:"invoiceId"`
	Origin           uint64 `json:"origin"`
	DestinationChain uint64 `json:"destinationChain"`
	Amount           string `json:"amount"`
}

// PurchaseRecord is the ephemeral record cached after a purchase intent is
// submitted, keyed by invoice id with roughly a one-day TTL.
type PurchaseRecord struct {
	InvoiceID          string         `json:"invoiceId"`
	Purchase           PurchaseIntent `json:"purchase"`
	TransactionHash    string         `json:"transactionHash"`
	TransactionType    string         `json:"transactionType"`
	HubInvoiceEnqueued uint64         `json:"hubInvoiceEnqueued"` // unix seconds, from the invoice
	CachedAt           time.Time      `json:"cachedAt"`
}
