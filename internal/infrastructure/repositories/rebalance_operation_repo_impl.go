package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/models"
	"mark-operator.backend/pkg/utils"
)

// RebalanceOperationRepository implements rebalance-operation data operations
type RebalanceOperationRepository struct {
	db *gorm.DB
}

// NewRebalanceOperationRepository creates a new rebalance operation repository
func NewRebalanceOperationRepository(db *gorm.DB) *RebalanceOperationRepository {
	return &RebalanceOperationRepository{db: db}
}

// Create inserts an operation row. Callers only invoke this after the
// origin receipt is confirmed, so Transactions must carry the origin entry.
func (r *RebalanceOperationRepository) Create(ctx context.Context, op *entities.RebalanceOperation) error {
	if op.ID == uuid.Nil {
		op.ID = utils.GenerateUUIDv7()
	}
	now := time.Now()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now

	txJSON, err := marshalTransactions(op.Transactions)
	if err != nil {
		return err
	}

	m := &models.RebalanceOperation{
		ID:                 op.ID,
		EarmarkID:          op.EarmarkID,
		OriginChainID:      op.OriginChainID,
		DestinationChainID: op.DestinationChainID,
		TickerHash:         op.TickerHash,
		Amount:             amountToString(op.Amount),
		Slippage:           op.Slippage,
		Status:             string(op.Status),
		Bridge:             op.Bridge,
		Recipient:          op.Recipient,
		Transactions:       txJSON,
		OperationType:      string(op.OperationType),
		CreatedAt:          op.CreatedAt,
		UpdatedAt:          op.UpdatedAt,
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets an operation by ID
func (r *RebalanceOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.RebalanceOperation, error) {
	var m models.RebalanceOperation
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m)
}

// List returns operations matching the filter plus the total count
func (r *RebalanceOperationRepository) List(ctx context.Context, filter domainRepos.OperationFilter) ([]*entities.RebalanceOperation, int, error) {
	base := GetDB(ctx, r.db).WithContext(ctx).Model(&models.RebalanceOperation{})
	if len(filter.Statuses) > 0 {
		base = base.Where("status IN ?", operationStatusStrings(filter.Statuses))
	}
	if filter.EarmarkID != nil {
		base = base.Where("earmark_id = ?", *filter.EarmarkID)
	}
	if filter.DestinationChainID != 0 {
		base = base.Where("destination_chain_id = ?", filter.DestinationChainID)
	}
	if filter.TickerHash != "" {
		base = base.Where("ticker_hash = ?", filter.TickerHash)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Order("created_at ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var ms []models.RebalanceOperation
	if err := query.Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	ops := make([]*entities.RebalanceOperation, 0, len(ms))
	for i := range ms {
		op, err := r.toEntity(&ms[i])
		if err != nil {
			return nil, 0, err
		}
		ops = append(ops, op)
	}
	return ops, int(total), nil
}

// ListByEarmark returns every operation linked to an earmark
func (r *RebalanceOperationRepository) ListByEarmark(ctx context.Context, earmarkID uuid.UUID) ([]*entities.RebalanceOperation, error) {
	ops, _, err := r.List(ctx, domainRepos.OperationFilter{EarmarkID: &earmarkID})
	return ops, err
}

// Update merges status and transaction receipts into an existing row.
func (r *RebalanceOperationRepository) Update(ctx context.Context, id uuid.UUID, update domainRepos.OperationUpdate) error {
	db := GetDB(ctx, r.db)

	values := map[string]interface{}{"updated_at": time.Now()}
	if update.Status != nil {
		values["status"] = string(*update.Status)
	}

	if len(update.Transactions) > 0 {
		var m models.RebalanceOperation
		if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrNotFound
			}
			return err
		}
		existing, err := unmarshalTransactions(m.Transactions)
		if err != nil {
			return err
		}
		for chainID, receipt := range update.Transactions {
			existing[chainID] = receipt
		}
		merged, err := marshalTransactions(existing)
		if err != nil {
			return err
		}
		values["transactions"] = merged
	}

	result := db.WithContext(ctx).Model(&models.RebalanceOperation{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// ExpireOlderThan flips stale non-terminal rows to EXPIRED
func (r *RebalanceOperationRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.RebalanceOperation{}).
		Where("status IN ? AND created_at < ?",
			[]string{string(entities.OperationStatusPending), string(entities.OperationStatusAwaitingCallback)},
			cutoff).
		Updates(map[string]interface{}{
			"status":     string(entities.OperationStatusExpired),
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *RebalanceOperationRepository) toEntity(m *models.RebalanceOperation) (*entities.RebalanceOperation, error) {
	transactions, err := unmarshalTransactions(m.Transactions)
	if err != nil {
		return nil, err
	}
	return &entities.RebalanceOperation{
		ID:                 m.ID,
		EarmarkID:          m.EarmarkID,
		OriginChainID:      m.OriginChainID,
		DestinationChainID: m.DestinationChainID,
		TickerHash:         m.TickerHash,
		Amount:             stringToAmount(m.Amount),
		Slippage:           m.Slippage,
		Status:             entities.OperationStatus(m.Status),
		Bridge:             m.Bridge,
		Recipient:          m.Recipient,
		Transactions:       transactions,
		OperationType:      entities.OperationType(m.OperationType),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

func operationStatusStrings(statuses []entities.OperationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func marshalTransactions(transactions map[uint64]*entities.TxReceipt) (string, error) {
	if transactions == nil {
		transactions = map[uint64]*entities.TxReceipt{}
	}
	raw, err := json.Marshal(transactions)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalTransactions(raw string) (map[uint64]*entities.TxReceipt, error) {
	if raw == "" {
		return map[uint64]*entities.TxReceipt{}, nil
	}
	var transactions map[uint64]*entities.TxReceipt
	if err := json.Unmarshal([]byte(raw), &transactions); err != nil {
		return nil, err
	}
	if transactions == nil {
		transactions = map[uint64]*entities.TxReceipt{}
	}
	return transactions, nil
}
