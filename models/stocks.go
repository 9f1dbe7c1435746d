package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockPrice is a recorded quote snapshot.
type StockPrice struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	Symbol        string          `gorm:"size:10;not null;index:idx_stock_prices_symbol_time,priority:1" json:"symbol"`
	Price         decimal.Decimal `gorm:"type:numeric(19,4);not null" json:"price"`
	PriceChange   decimal.Decimal `gorm:"type:numeric(19,4)" json:"price_change"`
	PercentChange decimal.Decimal `gorm:"type:numeric(12,6)" json:"percent_change"`
	RecordedAt    time.Time       `gorm:"not null;index:idx_stock_prices_symbol_time,priority:2;index" json:"recorded_at"`
}
