package repositories

import (
	"context"
	"math/big"

	"github.com/google/uuid"
	"mark-operator.backend/internal/domain/entities"
)

// SwapUpdate merges into an existing swap operation row.
type SwapUpdate struct {
	Status       *entities.SwapStatus
	OrderID      *string
	QuoteID      *string
	ExpectedRate *string
	ActualRate   *string
	ToAmount     *big.Int
	Metadata     *entities.SwapMetadata
}

// SwapOperationRepository defines swap-operation data operations
type SwapOperationRepository interface {
	Create(ctx context.Context, swap *entities.SwapOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.SwapOperation, error)
	// GetByRebalanceOperationID returns the single child swap for a
	// swap_and_bridge parent, or ErrNotFound.
	GetByRebalanceOperationID(ctx context.Context, opID uuid.UUID) (*entities.SwapOperation, error)
	ListByStatus(ctx context.Context, statuses []entities.SwapStatus) ([]*entities.SwapOperation, error)
	Update(ctx context.Context, id uuid.UUID, update SwapUpdate) error
}
