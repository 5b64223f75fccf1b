package usecases

import (
	"fmt"
	"math/big"

	domainerrors "mark-operator.backend/internal/domain/errors"
)

// CanonicalDecimals is the fixed-point scale for all cross-component
// arithmetic. Conversion to an asset's native decimals happens only at
// adapter boundaries.
const CanonicalDecimals = 18

// DbpsDenominator is the decibasis-point scale: slippage rates are
// integers over 1e7.
const DbpsDenominator = 10_000_000

var bigDbpsDenominator = big.NewInt(DbpsDenominator)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToNative converts an 18-dec amount to the asset's native decimals,
// truncating towards zero when the native grid is coarser.
func ToNative(amount18 *big.Int, decimals uint8) *big.Int {
	if decimals == CanonicalDecimals {
		return new(big.Int).Set(amount18)
	}
	if decimals < CanonicalDecimals {
		return new(big.Int).Div(amount18, pow10(CanonicalDecimals-int(decimals)))
	}
	return new(big.Int).Mul(amount18, pow10(int(decimals)-CanonicalDecimals))
}

// To18 converts a native amount to 18-dec units.
func To18(native *big.Int, decimals uint8) *big.Int {
	if decimals == CanonicalDecimals {
		return new(big.Int).Set(native)
	}
	if decimals < CanonicalDecimals {
		return new(big.Int).Mul(native, pow10(CanonicalDecimals-int(decimals)))
	}
	return new(big.Int).Div(native, pow10(int(decimals)-CanonicalDecimals))
}

// ApplyFee deducts a fee. An amount at or below the fee is an error, not a
// zero result.
func ApplyFee(amount, fee *big.Int) (*big.Int, error) {
	if amount.Cmp(fee) <= 0 {
		return nil, fmt.Errorf("%w: amount %s, fee %s", domainerrors.ErrAmountBelowFee, amount, fee)
	}
	return new(big.Int).Sub(amount, fee), nil
}

// SlippageDbps computes the observed slippage of a transfer in dBps:
// (sent−received)·1e7/sent. Receiving at least what was sent is zero
// slippage.
func SlippageDbps(sent, received *big.Int) uint32 {
	if sent.Sign() <= 0 || received.Cmp(sent) >= 0 {
		return 0
	}
	diff := new(big.Int).Sub(sent, received)
	diff.Mul(diff, bigDbpsDenominator)
	diff.Div(diff, sent)
	return uint32(diff.Uint64())
}

// ComputeMinAcceptable returns amount − amount·dBps/1e7: the least the
// counterparty may deliver within the slippage budget.
func ComputeMinAcceptable(amount *big.Int, dbps uint32) *big.Int {
	cut := new(big.Int).Mul(amount, big.NewInt(int64(dbps)))
	cut.Div(cut, bigDbpsDenominator)
	return new(big.Int).Sub(amount, cut)
}

// GrossUpForSlippage returns the amount to send so that after losing up to
// the budget the shortfall is still covered: shortfall·1e7/(1e7−budget).
func GrossUpForSlippage(shortfall *big.Int, budgetDbps uint32) *big.Int {
	if budgetDbps >= DbpsDenominator {
		return new(big.Int).Set(shortfall)
	}
	out := new(big.Int).Mul(shortfall, bigDbpsDenominator)
	out.Div(out, big.NewInt(int64(DbpsDenominator-budgetDbps)))
	return out
}

// RoundToPrecision truncates an 18-dec amount so that, expressed in whole
// tokens, it carries at most precision fractional digits. The grid can
// never be finer than the asset's own decimals. Truncation is towards
// zero, so the result is never greater than the input.
func RoundToPrecision(amount18 *big.Int, decimals, precision uint8) *big.Int {
	digits := precision
	if decimals < digits {
		digits = decimals
	}
	if digits >= CanonicalDecimals {
		return new(big.Int).Set(amount18)
	}
	quantum := pow10(CanonicalDecimals - int(digits))
	out := new(big.Int).Div(amount18, quantum)
	return out.Mul(out, quantum)
}

// RoundingTolerance is one native unit expressed in 18-dec units: the
// planner treats a residual shortfall below this as covered.
func RoundingTolerance(decimals uint8) *big.Int {
	if decimals >= CanonicalDecimals {
		return big.NewInt(1)
	}
	return pow10(CanonicalDecimals - int(decimals))
}
