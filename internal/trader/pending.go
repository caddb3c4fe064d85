package trader

import (
	"context"
	"math"
	"time"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/models"
	"go.uber.org/zap"
)

// PendingGate holds non-initial buys until their owner confirms or rejects them.
type PendingGate struct {
	repo     database.Repository
	oracle   PriceOracle
	executor *Executor
	locks    *UserLocks
	logger   *zap.Logger
	now      func() time.Time
}

func NewPendingGate(repo database.Repository, oracle PriceOracle, executor *Executor, locks *UserLocks, logger *zap.Logger) *PendingGate {
	return &PendingGate{
		repo:     repo,
		oracle:   oracle,
		executor: executor,
		locks:    locks,
		logger:   logger.Named("pending-buys"),
		now:      time.Now,
	}
}

// Propose records a pending buy unless the user already has an outstanding one,
// in which case that record is returned and created is false.
func (g *PendingGate) Propose(ctx context.Context, userID uint, price, amount float64) (pending *models.PendingBuy, created bool, err error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	err = g.repo.Transaction(ctx, func(tx database.Repository) error {
		pending, created, err = g.propose(ctx, tx, userID, price, amount)
		return err
	})
	return pending, created, err
}

// propose expects the caller to hold the user's lock.
func (g *PendingGate) propose(ctx context.Context, repo database.Repository, userID uint, price, amount float64) (*models.PendingBuy, bool, error) {
	existing, err := repo.FindOutstandingPendingBuy(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	pending := &models.PendingBuy{
		UserID:    userID,
		Price:     price,
		Amount:    amount,
		Timestamp: g.now().UTC(),
	}
	if err := repo.CreatePendingBuy(ctx, pending); err != nil {
		return nil, false, err
	}
	return pending, true, nil
}

// Outstanding lists the pending buys awaiting a decision by the user.
func (g *PendingGate) Outstanding(ctx context.Context, userID uint) ([]models.PendingBuy, error) {
	return g.repo.ListOutstandingPendingBuys(ctx, userID)
}

// owned loads a pending buy and checks that userID owns it.
func (g *PendingGate) owned(ctx context.Context, id, userID uint) (*models.PendingBuy, error) {
	pending, err := g.repo.GetPendingBuy(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending.UserID != userID {
		return nil, ErrUnauthorized
	}
	return pending, nil
}

// Confirm executes a pending buy at the current market price. If the price
// drifted more than 1% since the proposal a *PriceDriftError is returned and
// nothing changes. Otherwise the confirmation is committed before the order
// is sent, so an order failure leaves the record confirmed and is returned.
func (g *PendingGate) Confirm(ctx context.Context, id, userID uint) (*models.Trade, error) {
	if _, err := g.owned(ctx, id, userID); err != nil {
		return nil, err
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	quote, ok := g.oracle.SpotPrice(ctx)
	if !ok {
		return nil, ErrPriceUnavailable
	}
	current := quote.Value

	l := g.logger.With(zap.Uint("user_id", userID), zap.Uint("pending_buy_id", id), zap.Float64("price", current))

	var (
		user    *models.User
		s       *models.Settings
		pending *models.PendingBuy
	)
	err := g.repo.Transaction(ctx, func(tx database.Repository) error {
		var err error
		pending, err = tx.GetPendingBuy(ctx, id)
		if err != nil {
			return err
		}
		if !pending.Outstanding() {
			return ErrPendingBuyResolved
		}

		drift := priceDrift(pending.Price, current)
		if math.Abs(drift) > maxConfirmDriftPercent {
			return &PriceDriftError{Proposed: pending.Price, Current: current, Percent: drift}
		}

		if user, err = tx.GetUser(ctx, userID); err != nil {
			return err
		}
		if s, err = tx.LockSettings(ctx, userID); err != nil {
			return err
		}
		if !s.DemoMode && !user.HasCredentials() {
			return ErrMissingCredentials
		}

		pending.IsConfirmed = true
		return tx.SavePendingBuy(ctx, pending)
	})
	if err != nil {
		return nil, err
	}

	fill, err := g.executor.PlaceOrder(ctx, orderRequest(user, s, binance.OrderSideBuy, pending.Amount, current))
	if err != nil {
		l.Error("Confirmed buy failed", zap.Error(err))
		return nil, err
	}

	trade := &models.Trade{
		UserID:    userID,
		Type:      models.TradeTypeBuy,
		Amount:    pending.Amount,
		Price:     current,
		Timestamp: g.now().UTC(),
	}
	s.LastBuyPrice = current
	var balances binance.Balances
	applyFill(s, &balances, fill)

	err = g.repo.Transaction(ctx, func(tx database.Repository) error {
		if err := tx.CreateTrade(ctx, trade); err != nil {
			return err
		}
		return tx.SaveSettings(ctx, s)
	})
	if err != nil {
		l.Error("Confirmed buy executed but could not be recorded", zap.Float64("amount", pending.Amount), zap.Error(err))
		return nil, err
	}

	l.Info("Pending buy confirmed and executed", zap.Float64("amount", trade.Amount))
	return trade, nil
}

// Reject marks a pending buy as rejected. Balances and position are untouched.
func (g *PendingGate) Reject(ctx context.Context, id, userID uint) (*models.PendingBuy, error) {
	if _, err := g.owned(ctx, id, userID); err != nil {
		return nil, err
	}

	unlock := g.locks.Lock(userID)
	defer unlock()

	var rejected *models.PendingBuy
	err := g.repo.Transaction(ctx, func(tx database.Repository) error {
		pending, err := tx.GetPendingBuy(ctx, id)
		if err != nil {
			return err
		}
		if !pending.Outstanding() {
			return ErrPendingBuyResolved
		}
		pending.IsRejected = true
		rejected = pending
		return tx.SavePendingBuy(ctx, pending)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("Pending buy rejected", zap.Uint("user_id", userID), zap.Uint("pending_buy_id", id))
	return rejected, nil
}
