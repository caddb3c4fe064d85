package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/models"
	"go.uber.org/zap"
)

// Decision summarizes what one evaluation did for a user.
type Decision struct {
	// Skipped is set when the user was not evaluated, with the reason.
	Skipped    string
	Buy        *models.Trade
	Sell       *models.Trade
	Pending    *models.PendingBuy
	SellReason string
}

// Engine evaluates the buy and sell rules of one user against a sampled price.
type Engine struct {
	repo     database.Repository
	exchange binance.RestClientInterface
	executor *Executor
	pending  *PendingGate
	locks    *UserLocks
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a new decision engine.
func NewEngine(repo database.Repository, exchange binance.RestClientInterface, executor *Executor, pending *PendingGate, locks *UserLocks, logger *zap.Logger) *Engine {
	return &Engine{
		repo:     repo,
		exchange: exchange,
		executor: executor,
		pending:  pending,
		locks:    locks,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate runs one tick for a user at price. Exchange calls are made before
// anything is written; the ledger update, any trade record and any pending
// buy are then committed together in one short transaction. Order failures
// are logged and leave the position untouched; only repository failures are
// returned.
func (e *Engine) Evaluate(ctx context.Context, userID uint, price float64) (*Decision, error) {
	if price <= 0 {
		return nil, ErrPriceUnavailable
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	user, err := e.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate user %d: %w", userID, err)
	}
	s, err := e.repo.GetOrCreateSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate user %d: %w", userID, err)
	}

	l := e.logger.With(zap.Uint("user_id", userID), zap.String("email", user.Email), zap.Float64("price", price))

	d := &Decision{}
	if !s.IsTrading {
		l.Debug("Trading is disabled for this user")
		d.Skipped = "trading disabled"
		return d, nil
	}
	if !s.DemoMode && !user.HasCredentials() {
		l.Warn("Live trading enabled but no API credentials found")
		d.Skipped = ErrMissingCredentials.Error()
		return d, nil
	}

	l = l.With(zap.Bool("demo", s.DemoMode))
	s.AppendPrice(price)
	s.LastCheckTime = e.now().UTC()

	propose := false
	balances, err := e.balances(ctx, user, s)
	if err != nil {
		l.Error("Failed to fetch account balances", zap.Error(err))
		d.Skipped = "balances unavailable"
	} else {
		l.Debug("Evaluating user",
			zap.Float64("btc", balances.BTC),
			zap.Float64("usdt", balances.USDT),
			zap.Float64("buy_threshold", s.BuyThreshold),
			zap.Float64("sell_threshold", s.SellThreshold),
			zap.Float64("last_buy_price", s.LastBuyPrice))

		propose = e.evaluateBuy(ctx, l, user, s, &balances, price, d)
		e.evaluateSell(ctx, l, user, s, &balances, price, d)
	}

	if err := e.commit(ctx, s, price, propose, d); err != nil {
		if d.Buy != nil || d.Sell != nil {
			l.Error("Executed orders could not be recorded",
				zap.Bool("bought", d.Buy != nil),
				zap.Bool("sold", d.Sell != nil),
				zap.Error(err))
		}
		return nil, fmt.Errorf("evaluate user %d: %w", userID, err)
	}
	if d.Pending != nil {
		l.Info("Created pending buy for confirmation", zap.Uint("pending_buy_id", d.Pending.ID), zap.Float64("amount", d.Pending.Amount))
	}
	return d, nil
}

// commit writes the outcome of one evaluation atomically.
func (e *Engine) commit(ctx context.Context, s *models.Settings, price float64, propose bool, d *Decision) error {
	return e.repo.Transaction(ctx, func(tx database.Repository) error {
		for _, trade := range []*models.Trade{d.Buy, d.Sell} {
			if trade == nil {
				continue
			}
			if err := tx.CreateTrade(ctx, trade); err != nil {
				return err
			}
		}
		if propose {
			pending, created, err := e.pending.propose(ctx, tx, s.UserID, price, s.TradeAmount)
			if err != nil {
				return err
			}
			if created {
				d.Pending = pending
			}
		}
		return tx.SaveSettings(ctx, s)
	})
}

func (e *Engine) balances(ctx context.Context, user *models.User, s *models.Settings) (binance.Balances, error) {
	if s.DemoMode {
		return binance.Balances{BTC: s.DemoBTCBalance, USDT: s.DemoUSDTBalance}, nil
	}
	return e.exchange.GetAccountBalances(ctx, credentials(user))
}

// evaluateBuy executes a first buy or reports that a pending buy should be
// proposed.
func (e *Engine) evaluateBuy(ctx context.Context, l *zap.Logger, user *models.User, s *models.Settings, balances *binance.Balances, price float64, d *Decision) (propose bool) {
	if s.TradeAmount <= 0 {
		l.Debug("Trade amount is not set, skipping buy check")
		return false
	}
	if !canBuy(price, s.BuyThreshold, s.LastBuyPrice) {
		return false
	}

	cost := s.TradeAmount * price
	if cost > balances.USDT {
		l.Info("Cannot buy, insufficient USDT balance", zap.Float64("cost", cost), zap.Float64("usdt", balances.USDT))
		return false
	}

	if s.HasOpenPosition() {
		return true
	}

	l.Info("First buy, executing immediately", zap.Float64("amount", s.TradeAmount))
	fill, err := e.executor.PlaceOrder(ctx, orderRequest(user, s, binance.OrderSideBuy, s.TradeAmount, price))
	if err != nil {
		l.Error("Buy order failed", zap.Error(err))
		return false
	}

	d.Buy = &models.Trade{
		UserID:    user.ID,
		Type:      models.TradeTypeBuy,
		Amount:    s.TradeAmount,
		Price:     price,
		Timestamp: e.now().UTC(),
	}
	s.LastBuyPrice = price
	applyFill(s, balances, fill)
	return false
}

func (e *Engine) evaluateSell(ctx context.Context, l *zap.Logger, user *models.User, s *models.Settings, balances *binance.Balances, price float64, d *Decision) {
	if balances.BTC <= 0 {
		return
	}
	reason := sellReason(price, s.SellThreshold, s.LastBuyPrice, s.SellAllPercentage)
	if reason == "" {
		return
	}

	amount := balances.BTC
	l = l.With(zap.String("reason", reason), zap.Float64("amount", amount))
	l.Info("Sell conditions met, selling entire balance")

	fill, err := e.executor.PlaceOrder(ctx, orderRequest(user, s, binance.OrderSideSell, amount, price))
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			l.Warn("Sell blocked", zap.Error(err))
		} else {
			l.Error("Sell order failed", zap.Error(err))
		}
		return
	}

	profit := calculateProfit(s.LastBuyPrice, price, amount)
	d.Sell = &models.Trade{
		UserID:    user.ID,
		Type:      models.TradeTypeSell,
		Amount:    amount,
		Price:     price,
		Profit:    profit,
		Timestamp: e.now().UTC(),
	}
	s.LastBuyPrice = 0
	applyFill(s, balances, fill)
	d.SellReason = reason
	l.Info("Position closed", zap.Float64("profit", profit))
}
