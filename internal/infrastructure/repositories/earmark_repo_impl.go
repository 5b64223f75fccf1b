package repositories

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/models"
	"mark-operator.backend/pkg/utils"
)

// EarmarkRepository implements earmark data operations
type EarmarkRepository struct {
	db *gorm.DB
}

// NewEarmarkRepository creates a new earmark repository
func NewEarmarkRepository(db *gorm.DB) *EarmarkRepository {
	return &EarmarkRepository{db: db}
}

// Create inserts an earmark. The partial unique index on active earmarks
// is the cross-process lock: a conflicting insert surfaces as
// ErrActiveEarmarkExists so callers can re-read the winner.
func (r *EarmarkRepository) Create(ctx context.Context, earmark *entities.Earmark) error {
	if earmark.ID == uuid.Nil {
		earmark.ID = utils.GenerateUUIDv7()
	}
	now := time.Now()
	if earmark.CreatedAt.IsZero() {
		earmark.CreatedAt = now
	}
	earmark.UpdatedAt = now

	m := &models.Earmark{
		ID:                      earmark.ID,
		InvoiceID:               earmark.InvoiceID,
		DesignatedPurchaseChain: earmark.DesignatedPurchaseChain,
		TickerHash:              earmark.TickerHash,
		MinAmount:               amountToString(earmark.MinAmount),
		Status:                  string(earmark.Status),
		CreatedAt:               earmark.CreatedAt,
		UpdatedAt:               earmark.UpdatedAt,
	}

	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrActiveEarmarkExists
		}
		return err
	}
	return nil
}

// GetByID gets an earmark by ID
func (r *EarmarkRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Earmark, error) {
	var m models.Earmark
	db := GetDB(ctx, r.db)
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// GetActiveByInvoiceID returns the single active earmark for an invoice
func (r *EarmarkRepository) GetActiveByInvoiceID(ctx context.Context, invoiceID string) (*entities.Earmark, error) {
	var m models.Earmark
	db := GetDB(ctx, r.db)
	err := db.WithContext(ctx).
		Where("invoice_id = ? AND status IN ?", invoiceID, activeStatusStrings()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return r.toEntity(&m), nil
}

// List returns earmarks matching the filter
func (r *EarmarkRepository) List(ctx context.Context, filter domainRepos.EarmarkFilter) ([]*entities.Earmark, error) {
	db := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Earmark{})
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", statusStrings(filter.Statuses))
	}
	if filter.InvoiceID != "" {
		db = db.Where("invoice_id = ?", filter.InvoiceID)
	}
	if filter.DesignatedPurchaseChain != 0 {
		db = db.Where("designated_purchase_chain = ?", filter.DesignatedPurchaseChain)
	}

	var ms []models.Earmark
	if err := db.Order("created_at ASC").Find(&ms).Error; err != nil {
		return nil, err
	}

	earmarks := make([]*entities.Earmark, 0, len(ms))
	for i := range ms {
		earmarks = append(earmarks, r.toEntity(&ms[i]))
	}
	return earmarks, nil
}

// UpdateStatus sets the earmark status. Transition legality is the
// caller's responsibility.
func (r *EarmarkRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entities.EarmarkStatus) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Earmark{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// UpdateMinAmount sets the reserved minimum amount (18-dec units)
func (r *EarmarkRepository) UpdateMinAmount(ctx context.Context, id uuid.UUID, minAmount *big.Int) error {
	db := GetDB(ctx, r.db)
	result := db.WithContext(ctx).Model(&models.Earmark{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"min_amount": amountToString(minAmount),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *EarmarkRepository) toEntity(m *models.Earmark) *entities.Earmark {
	return &entities.Earmark{
		ID:                      m.ID,
		InvoiceID:               m.InvoiceID,
		DesignatedPurchaseChain: m.DesignatedPurchaseChain,
		TickerHash:              m.TickerHash,
		MinAmount:               stringToAmount(m.MinAmount),
		Status:                  entities.EarmarkStatus(m.Status),
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}

func activeStatusStrings() []string {
	return statusStrings(entities.ActiveEarmarkStatuses)
}

func statusStrings(statuses []entities.EarmarkStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func amountToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func stringToAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

// isUniqueViolation matches Postgres and SQLite unique-index failures.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
