package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	purchasesDataKey  = "purchases:data"
	purchasePauseKey  = "purchases:paused"
	rebalancePauseKey = "rebalance:paused"
)

// cacheEnvelope wraps a cached payload with its insertion time so stale
// entries can be pruned without a per-field TTL.
type cacheEnvelope struct {
	CachedAt time.Time       `json:"cachedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// PurchaseStore keeps purchase records and the global pause flags in Redis.
// Records live in the purchases:data hash keyed by invoice id.
type PurchaseStore struct {
	ttl time.Duration
}

// NewPurchaseStore creates a purchase store. ttl bounds record age for Prune.
func NewPurchaseStore(ttl time.Duration) *PurchaseStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PurchaseStore{ttl: ttl}
}

// SetPurchases stores the serialized purchase records for an invoice.
func (s *PurchaseStore) SetPurchases(ctx context.Context, invoiceID string, payload []byte) error {
	env := cacheEnvelope{CachedAt: time.Now().UTC(), Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return client.HSet(ctx, purchasesDataKey, invoiceID, raw).Err()
}

// GetPurchases returns the cached payload for an invoice, or nil when absent.
func (s *PurchaseStore) GetPurchases(ctx context.Context, invoiceID string) ([]byte, error) {
	raw, err := client.HGet(ctx, purchasesDataKey, invoiceID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var env cacheEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	if time.Since(env.CachedAt) > s.ttl {
		return nil, nil
	}
	return env.Payload, nil
}

// RemovePurchases deletes cached records for the given invoice ids.
func (s *PurchaseStore) RemovePurchases(ctx context.Context, invoiceIDs ...string) error {
	if len(invoiceIDs) == 0 {
		return nil
	}
	return client.HDel(ctx, purchasesDataKey, invoiceIDs...).Err()
}

// Prune drops records older than the store TTL. Returns the removed count.
func (s *PurchaseStore) Prune(ctx context.Context) (int, error) {
	all, err := client.HGetAll(ctx, purchasesDataKey).Result()
	if err != nil {
		return 0, err
	}
	var stale []string
	for id, raw := range all {
		var env cacheEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			stale = append(stale, id)
			continue
		}
		if time.Since(env.CachedAt) > s.ttl {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := client.HDel(ctx, purchasesDataKey, stale...).Err(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// IsPurchasePaused reports the global purchase pause flag.
func (s *PurchaseStore) IsPurchasePaused(ctx context.Context) (bool, error) {
	return s.flag(ctx, purchasePauseKey)
}

// SetPurchasePause sets the global purchase pause flag.
func (s *PurchaseStore) SetPurchasePause(ctx context.Context, paused bool) error {
	return s.setFlag(ctx, purchasePauseKey, paused)
}

// IsRebalancePaused reports the global rebalance pause flag.
func (s *PurchaseStore) IsRebalancePaused(ctx context.Context) (bool, error) {
	return s.flag(ctx, rebalancePauseKey)
}

// SetRebalancePause sets the global rebalance pause flag.
func (s *PurchaseStore) SetRebalancePause(ctx context.Context, paused bool) error {
	return s.setFlag(ctx, rebalancePauseKey, paused)
}

func (s *PurchaseStore) flag(ctx context.Context, key string) (bool, error) {
	val, err := client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return val == "1", nil
}

func (s *PurchaseStore) setFlag(ctx context.Context, key string, on bool) error {
	val := "0"
	if on {
		val = "1"
	}
	return client.Set(ctx, key, val, 0).Err()
}
