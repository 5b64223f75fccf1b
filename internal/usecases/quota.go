package usecases

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"mark-operator.backend/internal/domain/bridge"
	domainerrors "mark-operator.backend/internal/domain/errors"
	"mark-operator.backend/pkg/logger"
)

// QuotaSource exposes a CEX's remaining daily withdrawal quota and a spot
// price for converting amounts to USD.
type QuotaSource interface {
	RemainingDailyQuotaUSD(ctx context.Context) (decimal.Decimal, error)
	PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// QuotaChecker guards CEX withdrawals against the exchange's daily USD
// limit. The check is advisory: prices are spot reads and the exchange's
// own validation remains the final authority, so source errors log and
// allow rather than block.
type QuotaChecker struct {
	sources map[bridge.Kind]QuotaSource
}

// NewQuotaChecker creates a quota checker over the given per-CEX sources.
func NewQuotaChecker(sources map[bridge.Kind]QuotaSource) *QuotaChecker {
	if sources == nil {
		sources = map[bridge.Kind]QuotaSource{}
	}
	return &QuotaChecker{sources: sources}
}

// Check returns ErrQuotaExceeded when the withdrawal's USD value exceeds
// the exchange's remaining daily quota. Kinds without a source pass.
func (q *QuotaChecker) Check(ctx context.Context, kind bridge.Kind, amount *big.Int, symbol string, decimals uint8) error {
	source, ok := q.sources[kind]
	if !ok {
		return nil
	}

	remaining, err := source.RemainingDailyQuotaUSD(ctx)
	if err != nil {
		logger.Warn(ctx, "quota read failed, allowing withdrawal",
			zap.String("platform", string(kind)), zap.Error(err))
		return nil
	}
	price, err := source.PriceUSD(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "price read failed, allowing withdrawal",
			zap.String("platform", string(kind)), zap.Error(err))
		return nil
	}

	tokens := decimal.NewFromBigInt(amount, -int32(decimals))
	amountUSD := tokens.Mul(price)
	if amountUSD.GreaterThan(remaining) {
		return fmt.Errorf("%w: %s %s ~ %s USD exceeds remaining daily quota %s USD on %s",
			domainerrors.ErrQuotaExceeded, tokens, symbol, amountUSD.StringFixed(2), remaining.StringFixed(2), kind)
	}
	return nil
}
