package usecases

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"
	"mark-operator.backend/internal/domain/entities"
	"mark-operator.backend/pkg/logger"
)

// IntentCreator submits purchase intents to the hub.
type IntentCreator interface {
	CreateIntents(ctx context.Context, payload interface{}) ([]byte, error)
}

// HubPurchaser implements PurchaseService against the Everclear intent
// endpoint: it picks the first destination whose supply (operator balance
// plus custodied/incoming) covers the hub minimum and buys the invoice
// there.
type HubPurchaser struct {
	creator IntentCreator
	now     func() time.Time
}

// NewHubPurchaser creates a new hub purchaser
func NewHubPurchaser(creator IntentCreator) *HubPurchaser {
	return &HubPurchaser{creator: creator, now: time.Now}
}

type intentRequest struct {
	InvoiceID   string `json:"invoiceId"`
	Origin      uint64 `json:"origin"`
	Destination uint64 `json:"destination"`
	TickerHash  string `json:"tickerHash"`
	Amount      string `json:"amount"`
}

type intentResponse struct {
	TransactionHash string `json:"transactionHash"`
}

// SplitAndSendIntents submits a purchase intent for the cheapest
// satisfiable destination. Zero records means nothing was satisfiable.
func (h *HubPurchaser) SplitAndSendIntents(
	ctx context.Context,
	invoice *entities.Invoice,
	balances map[string]map[uint64]*big.Int,
	custodied map[uint64]*big.Int,
	minAmounts map[uint64]*big.Int,
) ([]entities.PurchaseRecord, error) {
	destinations := make([]uint64, 0, len(minAmounts))
	for dest := range minAmounts {
		destinations = append(destinations, dest)
	}
	// Cheapest requirement first; iteration order must be stable.
	sort.Slice(destinations, func(i, j int) bool {
		return minAmounts[destinations[i]].Cmp(minAmounts[destinations[j]]) < 0
	})

	for _, dest := range destinations {
		need := minAmounts[dest]
		supply := new(big.Int).Set(tickerBalance(balances, invoice.TickerHash, dest))
		if extra, ok := custodied[dest]; ok {
			supply.Add(supply, extra)
		}
		if supply.Cmp(need) < 0 {
			continue
		}

		body, err := h.creator.CreateIntents(ctx, intentRequest{
			InvoiceID:   invoice.IntentID,
			Origin:      invoice.Origin,
			Destination: dest,
			TickerHash:  invoice.TickerHash,
			Amount:      need.String(),
		})
		if err != nil {
			return nil, err
		}

		var resp intentResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			logger.Warn(ctx, "intent response unparseable",
				zap.String("invoice_id", invoice.IntentID), zap.Error(err))
		}

		record := entities.PurchaseRecord{
			InvoiceID: invoice.IntentID,
			Purchase: entities.PurchaseIntent{
				InvoiceID:        invoice.IntentID,
				Origin:           invoice.Origin,
				DestinationChain: dest,
				Amount:           need.String(),
			},
			TransactionHash:    resp.TransactionHash,
			TransactionType:    "purchase",
			HubInvoiceEnqueued: invoice.HubInvoiceEnqueued,
			CachedAt:           h.now(),
		}
		logger.Info(ctx, "purchase intent submitted",
			zap.String("invoice_id", invoice.IntentID),
			zap.Uint64("destination", dest),
			zap.String("amount", need.String()))
		return []entities.PurchaseRecord{record}, nil
	}

	return nil, nil
}
