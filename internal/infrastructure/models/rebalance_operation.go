package models

import (
	"time"

	"github.com/google/uuid"
)

// RebalanceOperation is the persistence model for origin→destination fund
// movements. Transactions is a JSONB map of chain id → receipt; the origin
// entry is present from creation because rows are only written after the
// origin transaction confirms.
type RebalanceOperation struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EarmarkID          *uuid.UUID `gorm:"type:uuid;index"` // Nullable
	OriginChainID      uint64     `gorm:"not null"`
	DestinationChainID uint64     `gorm:"not null;index:idx_ops_status_earmark_dest,priority:3"`
	TickerHash         string     `gorm:"type:varchar(66);not null"`
	Amount             string     `gorm:"type:numeric(78,0);not null"`
	Slippage           uint32     `gorm:"not null"`
	Status             string     `gorm:"type:varchar(20);not null;index:idx_ops_status_earmark_dest,priority:1"`
	Bridge             string     `gorm:"type:varchar(50);not null"`
	Recipient          string     `gorm:"type:varchar(255);not null"`
	Transactions       string     `gorm:"type:jsonb;default:'{}'"`
	OperationType      string     `gorm:"type:varchar(20);not null"`
	CreatedAt          time.Time  `gorm:"index"`
	UpdatedAt          time.Time
}

func (RebalanceOperation) TableName() string {
	return "rebalance_operations"
}
