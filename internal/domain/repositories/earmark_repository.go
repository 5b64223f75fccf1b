package repositories

import (
	"context"
	"math/big"

	"github.com/google/uuid"
	"mark-operator.backend/internal/domain/entities"
)

// EarmarkFilter narrows earmark queries. Zero values mean "any".
type EarmarkFilter struct {
	Statuses                []entities.EarmarkStatus
	InvoiceID               string
	DesignatedPurchaseChain uint64
}

// EarmarkRepository defines earmark data operations
type EarmarkRepository interface {
	// Create inserts an earmark atomically. When another active earmark
	// exists for the same invoice it returns ErrActiveEarmarkExists.
	Create(ctx context.Context, earmark *entities.Earmark) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Earmark, error)
	// GetActiveByInvoiceID returns the earmark in INITIATING/PENDING/READY
	// for an invoice, or ErrNotFound.
	GetActiveByInvoiceID(ctx context.Context, invoiceID string) (*entities.Earmark, error)
	List(ctx context.Context, filter EarmarkFilter) ([]*entities.Earmark, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entities.EarmarkStatus) error
	UpdateMinAmount(ctx context.Context, id uuid.UUID, minAmount *big.Int) error
}
