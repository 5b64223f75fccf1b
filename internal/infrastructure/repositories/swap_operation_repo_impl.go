package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/models"
	"mark-operator.backend/pkg/utils"
)

// SwapOperationRepository implements swap-operation data operations
type SwapOperationRepository struct {
	db *gorm.DB
}

// NewSwapOperationRepository creates a new swap operation repository
func NewSwapOperationRepository(db *gorm.DB) *SwapOperationRepository {
	return &SwapOperationRepository{db: db}
}

// Create inserts a swap operation row. The unique index on
// rebalance_operation_id keeps swap children one-to-one with parents.
func (r *SwapOperationRepository) Create(ctx context.Context, swap *entities.SwapOperation) error {
	if swap.ID == uuid.Nil {
		swap.ID = utils.GenerateUUIDv7()
	}
	now := time.Now()
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = now
	}
	swap.UpdatedAt = now

	metaJSON, err := marshalSwapMetadata(swap.Metadata)
	if err != nil {
		return err
	}

	m := &models.SwapOperation{
		ID:                   swap.ID,
		RebalanceOperationID: swap.RebalanceOperationID,
		Platform:             swap.Platform,
		FromAsset:            swap.FromAsset,
		ToAsset:              swap.ToAsset,
		FromAmount:           amountToString(swap.FromAmount),
		ToAmount:             amountToString(swap.ToAmount),
		ExpectedRate:         swap.ExpectedRate,
		ActualRate:           swap.ActualRate.Ptr(),
		Status:               string(swap.Status),
		OrderID:              swap.OrderID.Ptr(),
		QuoteID:              swap.QuoteID.Ptr(),
		Metadata:             metaJSON,
		CreatedAt:            swap.CreatedAt,
		UpdatedAt:            swap.UpdatedAt,
	}

	db := GetDB(ctx, r.db)
	return db.WithContext(ctx).Create(m).Error
}

// GetByID gets a swap operation by ID
func (r *SwapOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.SwapOperation, error) {
	var m models.SwapOperation
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m)
}

// GetByRebalanceOperationID gets the swap child of a rebalance operation
func (r *SwapOperationRepository) GetByRebalanceOperationID(ctx context.Context, opID uuid.UUID) (*entities.SwapOperation, error) {
	var m models.SwapOperation
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("rebalance_operation_id = ?", opID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m)
}

// ListByStatus returns swap operations in any of the given states
func (r *SwapOperationRepository) ListByStatus(ctx context.Context, statuses []entities.SwapStatus) ([]*entities.SwapOperation, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}

	var ms []models.SwapOperation
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("status IN ?", strs).Order("created_at ASC").Find(&ms).Error; err != nil {
		return nil, err
	}

	swaps := make([]*entities.SwapOperation, 0, len(ms))
	for i := range ms {
		swap, err := r.toEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}
	return swaps, nil
}

// Update merges the given fields into an existing swap row.
func (r *SwapOperationRepository) Update(ctx context.Context, id uuid.UUID, update domainRepos.SwapUpdate) error {
	values := map[string]interface{}{"updated_at": time.Now()}
	if update.Status != nil {
		values["status"] = string(*update.Status)
	}
	if update.OrderID != nil {
		values["order_id"] = *update.OrderID
	}
	if update.QuoteID != nil {
		values["quote_id"] = *update.QuoteID
	}
	if update.ExpectedRate != nil {
		values["expected_rate"] = *update.ExpectedRate
	}
	if update.ActualRate != nil {
		values["actual_rate"] = *update.ActualRate
	}
	if update.ToAmount != nil {
		values["to_amount"] = amountToString(update.ToAmount)
	}
	if update.Metadata != nil {
		metaJSON, err := marshalSwapMetadata(update.Metadata)
		if err != nil {
			return err
		}
		values["metadata"] = metaJSON
	}

	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.SwapOperation{}).
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

func (r *SwapOperationRepository) toEntity(m *models.SwapOperation) (*entities.SwapOperation, error) {
	meta, err := unmarshalSwapMetadata(m.Metadata)
	if err != nil {
		return nil, err
	}
	return &entities.SwapOperation{
		ID:                   m.ID,
		RebalanceOperationID: m.RebalanceOperationID,
		Platform:             m.Platform,
		FromAsset:            m.FromAsset,
		ToAsset:              m.ToAsset,
		FromAmount:           stringToAmount(m.FromAmount),
		ToAmount:             stringToAmount(m.ToAmount),
		ExpectedRate:         m.ExpectedRate,
		ActualRate:           null.StringFromPtr(m.ActualRate),
		Status:               entities.SwapStatus(m.Status),
		OrderID:              null.StringFromPtr(m.OrderID),
		QuoteID:              null.StringFromPtr(m.QuoteID),
		Metadata:             meta,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}, nil
}

func marshalSwapMetadata(meta *entities.SwapMetadata) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalSwapMetadata(raw string) (*entities.SwapMetadata, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var meta entities.SwapMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
