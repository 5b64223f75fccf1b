package errors

import (
	"errors"
	"net/http"
)

// Domain errors
var (
	ErrNotFound             = errors.New("resource not found")
	ErrBadRequest           = errors.New("bad request")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrActiveEarmarkExists  = errors.New("active earmark already exists for invoice")
	ErrAmountBelowFee       = errors.New("amount does not cover fee")
	ErrQuotaExceeded        = errors.New("daily withdrawal quota exceeded")
	ErrSlippageExceeded     = errors.New("slippage exceeds budget")
	ErrUnsupportedBridge    = errors.New("unsupported bridge")
	ErrRebalancePaused      = errors.New("rebalancing is paused")
	ErrPurchasePaused       = errors.New("purchasing is paused")
	ErrInvoiceNotFound      = errors.New("invoice not found on hub")
	ErrInvalidInvoice       = errors.New("invoice failed validation")
	ErrEarmarkInfeasible    = errors.New("earmark min amount cannot be fulfilled")
	ErrChainNotConfigured   = errors.New("chain not configured")
	ErrAssetNotConfigured   = errors.New("asset not configured")
	ErrTransactionFailed    = errors.New("transaction failed")
)

// Adapter error taxonomy. Adapters translate native protocol failures into
// these classes; the planner and executor branch on transient vs permanent.
var (
	ErrAdapterNetwork     = errors.New("adapter network failure")
	ErrAdapterRateLimited = errors.New("adapter rate limited")

	ErrInvalidRequest     = errors.New("adapter rejected request")
	ErrUnauthorizedAdapter = errors.New("adapter credentials rejected")
	ErrAssetUnsupported   = errors.New("asset unsupported by adapter")
	ErrAmountBelowMinimum = errors.New("amount below adapter minimum")
	ErrQuoteExpired       = errors.New("quote expired")
	ErrBelowBalance       = errors.New("amount exceeds adapter balance")
)

// IsAdapterTransient reports whether err is a retryable adapter failure.
func IsAdapterTransient(err error) bool {
	return errors.Is(err, ErrAdapterNetwork) || errors.Is(err, ErrAdapterRateLimited)
}

// IsAdapterPermanent reports whether err is a non-retryable adapter failure.
// The planner skips to the next preference on these.
func IsAdapterPermanent(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest,
		ErrUnauthorizedAdapter,
		ErrAssetUnsupported,
		ErrAmountBelowMinimum,
		ErrQuoteExpired,
		ErrBelowBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AppError represents application error with HTTP status
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, message, ErrNotFound)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, message, ErrBadRequest)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, message, ErrUnauthorized)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "internal server error", err)
}
