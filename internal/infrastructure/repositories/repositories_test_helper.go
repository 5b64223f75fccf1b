package repositories

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"mark-operator.backend/internal/domain/entities"
	"mark-operator.backend/pkg/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, Migrate(db), "migrate schema")
	return db
}

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "parse big int %q", s)
	return v
}

func testEarmark(invoiceID string, status entities.EarmarkStatus) *entities.Earmark {
	return &entities.Earmark{
		ID:                      utils.GenerateUUIDv7(),
		InvoiceID:               invoiceID,
		DesignatedPurchaseChain: 1,
		TickerHash:              "0xticker",
		MinAmount:               big.NewInt(1_000_000),
		Status:                  status,
	}
}

func testOperation(originChain, destChain uint64, status entities.OperationStatus) *entities.RebalanceOperation {
	id := utils.GenerateUUIDv7()
	return &entities.RebalanceOperation{
		ID:                 id,
		OriginChainID:      originChain,
		DestinationChainID: destChain,
		TickerHash:         "0xticker",
		Amount:             big.NewInt(1_001_001),
		Slippage:           1000,
		Status:             status,
		Bridge:             "cctpv1",
		Recipient:          "0xrecipient",
		OperationType:      entities.OperationTypeBridge,
		Transactions: map[uint64]*entities.TxReceipt{
			originChain: {
				TransactionHash: "0xorigin",
				ChainID:         originChain,
				BlockNumber:     100,
				Status:          1,
			},
		},
	}
}
