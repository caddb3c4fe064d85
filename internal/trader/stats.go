package trader

import (
	"time"

	"btc-threshold-trader/internal/models"
)

const recentTradesLimit = 10

// Stats aggregates a user's trade history.
type Stats struct {
	TotalProfit  float64        `json:"total_profit"`
	Profit24h    float64        `json:"profit_24h"`
	Profit7d     float64        `json:"profit_7d"`
	WinRate      float64        `json:"win_rate"`
	TotalTrades  int            `json:"total_trades"`
	RecentTrades []models.Trade `json:"recent_trades"`
}

// Statistics computes profit and win rate over trades, which must be ordered
// newest first. The win rate is the share of all trades with positive profit.
func Statistics(trades []models.Trade, now time.Time) Stats {
	stats := Stats{TotalTrades: len(trades), RecentTrades: []models.Trade{}}
	if len(trades) == 0 {
		return stats
	}

	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)
	wins := 0
	for _, t := range trades {
		stats.TotalProfit += t.Profit
		if t.Timestamp.After(dayAgo) {
			stats.Profit24h += t.Profit
		}
		if t.Timestamp.After(weekAgo) {
			stats.Profit7d += t.Profit
		}
		if t.Profit > 0 {
			wins++
		}
	}
	stats.WinRate = float64(wins) / float64(len(trades)) * 100

	n := len(trades)
	if n > recentTradesLimit {
		n = recentTradesLimit
	}
	stats.RecentTrades = trades[:n]
	return stats
}
