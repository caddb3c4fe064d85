package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// PriceHistoryLimit caps the rolling window of sampled prices.
	PriceHistoryLimit = 10

	DefaultDemoBTCBalance  = 1.0
	DefaultDemoUSDTBalance = 50000.0
)

// Settings is the per-user position ledger: thresholds, mode, demo balances
// and the state of the open position.
//
// LastBuyPrice == 0 means there is no open position.
type Settings struct {
	gorm.Model
	UserID            uint                         `gorm:"uniqueIndex;not null" json:"user_id"`
	BuyThreshold      float64                      `json:"buy_threshold"`
	SellThreshold     float64                      `json:"sell_threshold"`
	TradeAmount       float64                      `json:"trade_amount"`
	IsTrading         bool                         `json:"is_trading"`
	DemoMode          bool                         `json:"demo_mode"`
	DemoBTCBalance    float64                      `gorm:"column:demo_btc_balance" json:"demo_btc_balance"`
	DemoUSDTBalance   float64                      `gorm:"column:demo_usdt_balance" json:"demo_usdt_balance"`
	LastBuyPrice      float64                      `json:"last_buy_price"`
	PriceHistory      datatypes.JSONSlice[float64] `json:"price_history"`
	LastCheckTime     time.Time                    `json:"last_check_time"`
	SellAllPercentage float64                      `json:"sell_all_percentage"`
}

// NewDefaultSettings returns the ledger a user starts with: trading off,
// demo mode on with 1 BTC / 50000 USDT and no open position.
func NewDefaultSettings(userID uint) *Settings {
	return &Settings{
		UserID:          userID,
		DemoMode:        true,
		DemoBTCBalance:  DefaultDemoBTCBalance,
		DemoUSDTBalance: DefaultDemoUSDTBalance,
		PriceHistory:    datatypes.JSONSlice[float64]{},
		LastCheckTime:   time.Now().UTC(),
	}
}

// HasOpenPosition reports whether a bought quantity is still unsold.
func (s *Settings) HasOpenPosition() bool {
	return s.LastBuyPrice != 0
}

// AppendPrice records a sampled price, keeping only the most recent
// PriceHistoryLimit entries.
func (s *Settings) AppendPrice(price float64) {
	history := append([]float64(s.PriceHistory), price)
	if len(history) > PriceHistoryLimit {
		history = history[len(history)-PriceHistoryLimit:]
	}
	s.PriceHistory = datatypes.JSONSlice[float64](history)
}
