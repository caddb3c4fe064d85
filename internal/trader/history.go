package trader

import (
	"context"

	"btc-threshold-trader/internal/database"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// defaultSeedDays is the length of the price history backfill.
const defaultSeedDays = 7

// HistorySeeder backfills the stored price history of users that have too
// little of it for the market statistics.
type HistorySeeder struct {
	days   int
	repo   database.Repository
	oracle PriceOracle
	locks  *UserLocks
	logger *zap.Logger
}

// NewHistorySeeder creates a seeder that backfills days prices; a
// non-positive days means seven.
func NewHistorySeeder(repo database.Repository, oracle PriceOracle, locks *UserLocks, days int, logger *zap.Logger) *HistorySeeder {
	if days <= 0 {
		days = defaultSeedDays
	}
	return &HistorySeeder{days: days, repo: repo, oracle: oracle, locks: locks, logger: logger}
}

// Seed fills the price history from the user's latest trade prices, or with
// the current price repeated, when fewer than the configured number of
// prices are stored. It reports whether the history changed.
func (h *HistorySeeder) Seed(ctx context.Context, userID uint) (bool, error) {
	unlock := h.locks.Lock(userID)
	defer unlock()

	s, err := h.repo.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(s.PriceHistory) >= h.days {
		return false, nil
	}

	trades, err := h.repo.RecentTrades(ctx, userID, h.days)
	if err != nil {
		return false, err
	}

	var history []float64
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].Price != 0 {
			history = append(history, trades[i].Price)
		}
	}

	if len(history) > 0 {
		history = append(history, s.PriceHistory...)
		if len(history) > h.days {
			history = history[len(history)-h.days:]
		}
	} else {
		quote, ok := h.oracle.SpotPrice(ctx)
		if !ok {
			return false, nil
		}
		history = make([]float64, h.days)
		for i := range history {
			history[i] = quote.Value
		}
	}

	s.PriceHistory = datatypes.JSONSlice[float64](history)
	if err := h.repo.SaveSettings(ctx, s); err != nil {
		return false, err
	}
	h.logger.Info("Backfilled price history", zap.Uint("user_id", userID))
	return true, nil
}

// SeedAll seeds every user, logging failures without stopping.
func (h *HistorySeeder) SeedAll(ctx context.Context) {
	users, err := h.repo.ListUsers(ctx)
	if err != nil {
		h.logger.Error("Failed to list users for history seeding", zap.Error(err))
		return
	}
	for _, u := range users {
		if _, err := h.Seed(ctx, u.ID); err != nil {
			h.logger.Error("Failed to seed price history", zap.Uint("user_id", u.ID), zap.Error(err))
		}
	}
}
