package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/models"
	"go.uber.org/zap"
)

// SettingsUpdate is a partial settings change. Nil fields are left as they are.
// Credentials are only stored when the resulting mode is live.
type SettingsUpdate struct {
	BuyThreshold      *float64 `json:"buy_threshold"`
	SellThreshold     *float64 `json:"sell_threshold"`
	TradeAmount       *float64 `json:"trade_amount"`
	SellAllPercentage *float64 `json:"sell_all_percentage"`
	IsTrading         *bool    `json:"is_trading"`
	DemoMode          *bool    `json:"demo_mode"`
	APIKey            *string  `json:"api_key"`
	APISecret         *string  `json:"api_secret"`
}

func (u SettingsUpdate) validate() error {
	for name, v := range map[string]*float64{
		"buy_threshold":       u.BuyThreshold,
		"sell_threshold":      u.SellThreshold,
		"trade_amount":        u.TradeAmount,
		"sell_all_percentage": u.SellAllPercentage,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidSettings, name)
		}
	}
	if u.TradeAmount != nil && *u.TradeAmount < 0 {
		return fmt.Errorf("%w: trade_amount must not be negative", ErrInvalidSettings)
	}
	if u.SellAllPercentage != nil && (*u.SellAllPercentage < 0 || *u.SellAllPercentage > 100) {
		return fmt.Errorf("%w: sell_all_percentage must be between 0 and 100", ErrInvalidSettings)
	}
	return nil
}

// AccountBalances are the balances a user currently trades with.
type AccountBalances struct {
	BTC  float64 `json:"btc"`
	USDT float64 `json:"usdt"`
	Demo bool    `json:"demo_mode"`
}

// Accounts serves the user-facing reads and writes of a position ledger.
type Accounts struct {
	repo     database.Repository
	exchange binance.RestClientInterface
	locks    *UserLocks
	logger   *zap.Logger
}

func NewAccounts(repo database.Repository, exchange binance.RestClientInterface, locks *UserLocks, logger *zap.Logger) *Accounts {
	return &Accounts{repo: repo, exchange: exchange, locks: locks, logger: logger}
}

// Settings returns the user's ledger, creating the defaults on first access.
func (a *Accounts) Settings(ctx context.Context, userID uint) (*models.Settings, error) {
	if _, err := a.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return a.repo.GetOrCreateSettings(ctx, userID)
}

// UpdateSettings applies upd under the user's lock so it never interleaves
// with an evaluation.
func (a *Accounts) UpdateSettings(ctx context.Context, userID uint, upd SettingsUpdate) (*models.Settings, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}

	unlock := a.locks.Lock(userID)
	defer unlock()

	var updated *models.Settings
	err := a.repo.Transaction(ctx, func(tx database.Repository) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		s, err := tx.LockSettings(ctx, userID)
		if err != nil {
			return err
		}

		setFloat(&s.BuyThreshold, upd.BuyThreshold)
		setFloat(&s.SellThreshold, upd.SellThreshold)
		setFloat(&s.TradeAmount, upd.TradeAmount)
		setFloat(&s.SellAllPercentage, upd.SellAllPercentage)
		if upd.IsTrading != nil {
			s.IsTrading = *upd.IsTrading
		}
		if upd.DemoMode != nil {
			s.DemoMode = *upd.DemoMode
		}

		if !s.DemoMode && (upd.APIKey != nil || upd.APISecret != nil) {
			if upd.APIKey != nil {
				user.APIKey = *upd.APIKey
			}
			if upd.APISecret != nil {
				user.APISecret = *upd.APISecret
			}
			if err := tx.SaveUser(ctx, user); err != nil {
				return err
			}
		}
		if !s.DemoMode && !user.HasCredentials() {
			a.logger.Warn("Live mode selected without API credentials", zap.Uint("user_id", userID))
		}

		updated = s
		return tx.SaveSettings(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// Balances returns the demo ledger balances, or the live account balances
// when the user trades for real.
func (a *Accounts) Balances(ctx context.Context, userID uint) (AccountBalances, error) {
	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return AccountBalances{}, err
	}
	s, err := a.repo.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return AccountBalances{}, err
	}

	if s.DemoMode {
		return AccountBalances{BTC: s.DemoBTCBalance, USDT: s.DemoUSDTBalance, Demo: true}, nil
	}
	if !user.HasCredentials() {
		return AccountBalances{}, ErrMissingCredentials
	}
	b, err := a.exchange.GetAccountBalances(ctx, credentials(user))
	if err != nil {
		return AccountBalances{}, err
	}
	return AccountBalances{BTC: b.BTC, USDT: b.USDT}, nil
}

// TradeStatistics loads the user's trades and aggregates them as of now.
func (a *Accounts) TradeStatistics(ctx context.Context, userID uint, now time.Time) (Stats, error) {
	trades, err := a.repo.ListTrades(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Statistics(trades, now), nil
}

// Trades returns the user's trade history, newest first.
func (a *Accounts) Trades(ctx context.Context, userID uint) ([]models.Trade, error) {
	return a.repo.ListTrades(ctx, userID)
}
