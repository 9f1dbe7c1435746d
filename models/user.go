package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Username  string          `gorm:"size:80;uniqueIndex;not null" json:"username"`
	Hash      string          `gorm:"not null" json:"-"`
	Cash      decimal.Decimal `gorm:"type:numeric(19,4);not null" json:"cash"`
	CreatedAt time.Time       `json:"created_at"`
}
