package everclear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"mark-operator.backend/internal/config"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	"mark-operator.backend/pkg/logger"
)

const (
	maxAttempts  = 3
	backoffBase  = 500 * time.Millisecond
	backoffLimit = 5 * time.Second
)

// Client talks to the Everclear hub REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewClient creates a hub client
func NewClient(cfg config.HubConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		sleep:      time.Sleep,
	}
}

type invoiceDTO struct {
	IntentID           string   `json:"intent_id"`
	Owner              string   `json:"owner"`
	TickerHash         string   `json:"ticker_hash"`
	Amount             string   `json:"amount"`
	Origin             string   `json:"origin"`
	Destinations       []string `json:"destinations"`
	HubInvoiceEnqueued uint64   `json:"hub_invoice_enqueued_timestamp"`
	HubStatus          string   `json:"hub_status"`
}

type minAmountsDTO struct {
	MinAmounts map[string]string `json:"minAmounts"`
}

type economyDTO struct {
	CustodiedAmount string `json:"custodiedAmount"`
	IncomingAmount  string `json:"incomingAmount"`
}

// EconomyData reports hub-side custodied funds and asset already en route
// from other settlers, per (domain, ticker).
type EconomyData struct {
	Custodied *big.Int
	Incoming  *big.Int
}

// GetInvoice fetches an invoice by intent id. A hub 404 maps to
// ErrInvoiceNotFound so callers can prune stale earmarks.
func (c *Client) GetInvoice(ctx context.Context, intentID string) (*entities.Invoice, error) {
	body, err := c.get(ctx, "/invoices/"+intentID)
	if err != nil {
		return nil, err
	}

	var dto invoiceDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("invoice response malformed: %w", err)
	}
	return dto.toEntity()
}

// GetMinAmounts fetches the hub's per-destination minimum purchase amounts
// in 18-dec units.
func (c *Client) GetMinAmounts(ctx context.Context, intentID string) (map[uint64]*big.Int, error) {
	body, err := c.get(ctx, "/invoices/"+intentID+"/min-amounts")
	if err != nil {
		return nil, err
	}

	var dto minAmountsDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("min-amounts response malformed: %w", err)
	}

	out := make(map[uint64]*big.Int, len(dto.MinAmounts))
	for domain, raw := range dto.MinAmounts {
		chainID, err := strconv.ParseUint(domain, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("min-amounts domain %q: %w", domain, err)
		}
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("min-amounts value %q is not an integer", raw)
		}
		out[chainID] = amount
	}
	return out, nil
}

// GetEconomyData fetches custodied and incoming amounts for a ticker on a
// domain, in 18-dec units.
func (c *Client) GetEconomyData(ctx context.Context, domain uint64, tickerHash string) (*EconomyData, error) {
	body, err := c.get(ctx, fmt.Sprintf("/economy/%d/%s", domain, tickerHash))
	if err != nil {
		return nil, err
	}

	var dto economyDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, fmt.Errorf("economy response malformed: %w", err)
	}

	custodied, ok := new(big.Int).SetString(defaultZero(dto.CustodiedAmount), 10)
	if !ok {
		return nil, fmt.Errorf("economy custodied %q is not an integer", dto.CustodiedAmount)
	}
	incoming, ok := new(big.Int).SetString(defaultZero(dto.IncomingAmount), 10)
	if !ok {
		return nil, fmt.Errorf("economy incoming %q is not an integer", dto.IncomingAmount)
	}
	return &EconomyData{Custodied: custodied, Incoming: incoming}, nil
}

// CreateIntents posts purchase intents to the hub. Used by the purchase
// path after split.
func (c *Client) CreateIntents(ctx context.Context, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/intents", raw)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// do performs the request with up to 3 attempts. Transport errors, 429 and
// 5xx are retried with capped exponential backoff; everything else returns
// immediately.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	delay := backoffBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.sleep(delay)
			delay *= 2
			if delay > backoffLimit {
				delay = backoffLimit
			}
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("hub request failed: %w", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, domainerrors.ErrInvoiceNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("hub returned %d: %s", resp.StatusCode, string(body))
			continue
		default:
			return nil, fmt.Errorf("hub returned %d: %s", resp.StatusCode, string(body))
		}
	}

	logger.Warn(ctx, "hub request exhausted retries",
		zap.String("path", path),
		zap.Error(lastErr))
	return nil, lastErr
}

func (dto *invoiceDTO) toEntity() (*entities.Invoice, error) {
	amount, ok := new(big.Int).SetString(dto.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invoice amount %q is not an integer", dto.Amount)
	}
	origin, err := strconv.ParseUint(dto.Origin, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invoice origin %q: %w", dto.Origin, err)
	}
	destinations := make([]uint64, 0, len(dto.Destinations))
	for _, d := range dto.Destinations {
		chainID, err := strconv.ParseUint(d, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invoice destination %q: %w", d, err)
		}
		destinations = append(destinations, chainID)
	}
	return &entities.Invoice{
		IntentID:           dto.IntentID,
		Owner:              dto.Owner,
		TickerHash:         dto.TickerHash,
		Amount:             amount,
		Origin:             origin,
		Destinations:       destinations,
		HubInvoiceEnqueued: dto.HubInvoiceEnqueued,
		HubStatus:          dto.HubStatus,
	}, nil
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
