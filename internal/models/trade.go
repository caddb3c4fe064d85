package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Trade is an immutable trade history entry. Profit is zero for buys and
// (sell price - last buy price) * amount for sells.
type Trade struct {
	gorm.Model
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Type      string    `gorm:"size:10" json:"type"` // "buy" or "sell"
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Profit    float64   `json:"profit"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

// TableName keeps the historical table name.
func (Trade) TableName() string {
	return "trade_history"
}
