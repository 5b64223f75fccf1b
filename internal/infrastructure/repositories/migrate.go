package repositories

import (
	"gorm.io/gorm"
	"mark-operator.backend/internal/infrastructure/models"
)

// activeEarmarkIndexSQL enforces at most one earmark per invoice in an
// active status. Both Postgres and SQLite support partial indexes with
// this syntax, so tests exercise the same constraint as production.
const activeEarmarkIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_earmarks_active_invoice
ON earmarks (invoice_id)
WHERE status IN ('INITIATING','PENDING','READY')`

// Migrate creates the schema and the partial unique index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Earmark{},
		&models.RebalanceOperation{},
		&models.SwapOperation{},
	); err != nil {
		return err
	}
	return db.Exec(activeEarmarkIndexSQL).Error
}
