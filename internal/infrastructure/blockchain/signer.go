package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"mark-operator.backend/internal/domain/bridge"
	domainerrors "mark-operator.backend/internal/domain/errors"
)

// SignerClient submits unsigned transactions to the per-chain signer
// sidecar, which holds the keys and broadcasts on our behalf.
type SignerClient struct {
	httpClient *http.Client
}

// NewSignerClient creates a signer client
func NewSignerClient(timeout time.Duration) *SignerClient {
	return &SignerClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

type signRequest struct {
	ChainID uint64 `json:"chainId"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
}

type signResponse struct {
	TransactionHash string `json:"transactionHash"`
	Error           string `json:"error,omitempty"`
}

// SignAndSend posts the transaction to the signer and returns the broadcast
// transaction hash.
func (c *SignerClient) SignAndSend(ctx context.Context, signerURL string, tx *bridge.TxRequest) (string, error) {
	value := "0"
	if tx.Value != nil {
		value = tx.Value.String()
	}
	payload, err := json.Marshal(signRequest{
		ChainID: tx.ChainID,
		To:      tx.To,
		Data:    hexutil.Encode(tx.Data),
		Value:   value,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signerURL+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: signer returned %d: %s", domainerrors.ErrTransactionFailed, resp.StatusCode, string(body))
	}

	var out signResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("signer response malformed: %w", err)
	}
	if out.TransactionHash == "" {
		return "", fmt.Errorf("%w: signer returned no transaction hash: %s", domainerrors.ErrTransactionFailed, out.Error)
	}
	return out.TransactionHash, nil
}
