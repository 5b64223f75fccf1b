package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"mark-operator.backend/internal/domain/entities"
	domainerrors "mark-operator.backend/internal/domain/errors"
	domainRepos "mark-operator.backend/internal/domain/repositories"
	"mark-operator.backend/internal/infrastructure/models"
)

func TestOperationCreateCarriesOriginReceipt(t *testing.T) {
	repo := NewRebalanceOperationRepository(newTestDB(t))
	ctx := context.Background()

	op := testOperation(10, 1, entities.OperationStatusPending)
	require.NoError(t, repo.Create(ctx, op))

	got, err := repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OperationStatusPending, got.Status)
	assert.Equal(t, "1001001", got.Amount.String())

	origin := got.OriginReceipt()
	require.NotNil(t, origin)
	assert.Equal(t, "0xorigin", origin.TransactionHash)
	assert.Equal(t, uint64(100), origin.BlockNumber)
}

func TestOperationUpdateMergesTransactions(t *testing.T) {
	repo := NewRebalanceOperationRepository(newTestDB(t))
	ctx := context.Background()

	op := testOperation(10, 1, entities.OperationStatusPending)
	require.NoError(t, repo.Create(ctx, op))

	status := entities.OperationStatusAwaitingCallback
	err := repo.Update(ctx, op.ID, domainRepos.OperationUpdate{
		Status: &status,
		Transactions: map[uint64]*entities.TxReceipt{
			1: {TransactionHash: "0xcallback", ChainID: 1, BlockNumber: 200, Status: 1},
		},
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OperationStatusAwaitingCallback, got.Status)
	require.Len(t, got.Transactions, 2, "origin receipt survives the merge")
	assert.Equal(t, "0xorigin", got.Transactions[10].TransactionHash)
	assert.Equal(t, "0xcallback", got.Transactions[1].TransactionHash)
}

func TestOperationUpdateUnknownID(t *testing.T) {
	repo := NewRebalanceOperationRepository(newTestDB(t))

	status := entities.OperationStatusCompleted
	err := repo.Update(context.Background(), testOperation(10, 1, status).ID, domainRepos.OperationUpdate{Status: &status})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestOperationListFiltersAndTotal(t *testing.T) {
	db := newTestDB(t)
	repo := NewRebalanceOperationRepository(db)
	earmarkRepo := NewEarmarkRepository(db)
	ctx := context.Background()

	earmark := testEarmark("invoice-list", entities.EarmarkStatusPending)
	require.NoError(t, earmarkRepo.Create(ctx, earmark))

	linked := testOperation(10, 1, entities.OperationStatusPending)
	linked.EarmarkID = &earmark.ID
	require.NoError(t, repo.Create(ctx, linked))

	standalone := testOperation(137, 1, entities.OperationStatusCompleted)
	require.NoError(t, repo.Create(ctx, standalone))

	ops, total, err := repo.List(ctx, domainRepos.OperationFilter{
		Statuses: []entities.OperationStatus{entities.OperationStatusPending},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, ops, 1)
	assert.Equal(t, linked.ID, ops[0].ID)

	byEarmark, err := repo.ListByEarmark(ctx, earmark.ID)
	require.NoError(t, err)
	require.Len(t, byEarmark, 1)
	assert.Equal(t, linked.ID, byEarmark[0].ID)

	ops, total, err = repo.List(ctx, domainRepos.OperationFilter{DestinationChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, ops, 2)
}

func TestExpireOlderThan(t *testing.T) {
	db := newTestDB(t)
	repo := NewRebalanceOperationRepository(db)
	ctx := context.Background()

	stalePending := testOperation(10, 1, entities.OperationStatusPending)
	require.NoError(t, repo.Create(ctx, stalePending))
	staleAwaiting := testOperation(10, 1, entities.OperationStatusAwaitingCallback)
	require.NoError(t, repo.Create(ctx, staleAwaiting))
	staleCompleted := testOperation(10, 1, entities.OperationStatusCompleted)
	require.NoError(t, repo.Create(ctx, staleCompleted))
	freshPending := testOperation(10, 1, entities.OperationStatusPending)
	require.NoError(t, repo.Create(ctx, freshPending))

	// Backdate everything except the fresh row past the TTL.
	old := time.Now().Add(-25 * time.Hour)
	for _, op := range []*entities.RebalanceOperation{stalePending, staleAwaiting, staleCompleted} {
		require.NoError(t, backdateOperation(db, op, old))
	}

	expired, err := repo.ExpireOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, expired)

	got, err := repo.GetByID(ctx, stalePending.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OperationStatusExpired, got.Status)

	got, err = repo.GetByID(ctx, staleCompleted.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OperationStatusCompleted, got.Status, "terminal rows never expire")

	got, err = repo.GetByID(ctx, freshPending.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OperationStatusPending, got.Status)
}

func backdateOperation(db *gorm.DB, op *entities.RebalanceOperation, createdAt time.Time) error {
	return db.Model(&models.RebalanceOperation{}).
		Where("id = ?", op.ID).
		Update("created_at", createdAt).Error
}
