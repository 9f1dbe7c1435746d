package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a user's current holding of one symbol.
type Position struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_positions_user_symbol" json:"user_id"`
	Symbol string `gorm:"size:10;not null;uniqueIndex:idx_positions_user_symbol" json:"symbol"`
	Shares int64  `gorm:"not null" json:"shares"`

	User         User          `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Transactions []Transaction `gorm:"foreignKey:PositionID;constraint:OnDelete:SET NULL;" json:"-"`
}

// Transaction is an immutable ledger row. Shares is signed: positive for a
// buy, negative for a sell, zero for a cash deposit, in which case Price holds
// the deposited amount and Symbol is empty.
type Transaction struct {
	ID         uint            `gorm:"primaryKey;index:idx_transactions_user_order,priority:3" json:"id"`
	UserID     uint            `gorm:"not null;index:idx_transactions_user_order,priority:1" json:"user_id"`
	PositionID *uint           `json:"position_id,omitempty"`
	Symbol     string          `gorm:"size:10;not null;default:''" json:"symbol"`
	Shares     int64           `gorm:"not null" json:"shares"`
	Price      decimal.Decimal `gorm:"type:numeric(19,4);not null" json:"price"`
	Timestamp  time.Time       `gorm:"not null;index:idx_transactions_user_order,priority:2" json:"timestamp"`

	User User `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}
