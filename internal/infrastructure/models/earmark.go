package models

import (
	"time"

	"github.com/google/uuid"
)

// Earmark is the persistence model for invoice fund reservations.
// A partial unique index on invoice_id over the active statuses enforces
// the one-active-earmark-per-invoice invariant at the database level.
type Earmark struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey"`
	InvoiceID               string    `gorm:"type:varchar(255);not null;index"`
	DesignatedPurchaseChain uint64    `gorm:"not null"`
	TickerHash              string    `gorm:"type:varchar(66);not null;index"`
	MinAmount               string    `gorm:"type:numeric(78,0);not null"`
	Status                  string    `gorm:"type:varchar(20);not null;index"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (Earmark) TableName() string {
	return "earmarks"
}
