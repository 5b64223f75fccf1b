package models

import (
	"time"

	"github.com/google/uuid"
)

// SwapOperation is the persistence model for the CEX leg of a
// swap_and_bridge rebalance operation.
type SwapOperation struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	RebalanceOperationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Platform             string    `gorm:"type:varchar(50);not null"`
	FromAsset            string    `gorm:"type:varchar(255);not null"`
	ToAsset              string    `gorm:"type:varchar(255);not null"`
	FromAmount           string    `gorm:"type:numeric(78,0);not null"`
	ToAmount             string    `gorm:"type:numeric(78,0);default:'0'"`
	ExpectedRate         string    `gorm:"type:varchar(100)"`
	ActualRate           *string   `gorm:"type:varchar(100)"` // Nullable
	Status               string    `gorm:"type:varchar(30);not null;index"`
	OrderID              *string   `gorm:"type:varchar(255)"`
	QuoteID              *string   `gorm:"type:varchar(255)"`
	Metadata             string    `gorm:"type:jsonb;default:'{}'"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	RebalanceOperation RebalanceOperation `gorm:"foreignKey:RebalanceOperationID"`
}

func (SwapOperation) TableName() string {
	return "swap_operations"
}
