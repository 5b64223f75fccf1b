package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"mark-operator.backend/internal/domain/entities"
)

// OperationFilter narrows rebalance-operation queries. Zero values mean "any".
type OperationFilter struct {
	Statuses           []entities.OperationStatus
	EarmarkID          *uuid.UUID
	DestinationChainID uint64
	TickerHash         string
	Limit              int
	Offset             int
}

// OperationUpdate merges into an existing row. Transactions are merged
// keyed by chain id, never replaced wholesale.
type OperationUpdate struct {
	Status       *entities.OperationStatus
	Transactions map[uint64]*entities.TxReceipt
}

// RebalanceOperationRepository defines rebalance-operation data operations
type RebalanceOperationRepository interface {
	Create(ctx context.Context, op *entities.RebalanceOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.RebalanceOperation, error)
	List(ctx context.Context, filter OperationFilter) ([]*entities.RebalanceOperation, int, error)
	ListByEarmark(ctx context.Context, earmarkID uuid.UUID) ([]*entities.RebalanceOperation, error)
	Update(ctx context.Context, id uuid.UUID, update OperationUpdate) error
	// ExpireOlderThan flips PENDING/AWAITING_CALLBACK rows created before
	// cutoff to EXPIRED. Returns the number of rows affected.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
