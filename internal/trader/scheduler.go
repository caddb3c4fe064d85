package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"btc-threshold-trader/internal/config"
	"btc-threshold-trader/internal/database"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler samples one price per tick and evaluates every user with it.
type Scheduler struct {
	repo     database.Repository
	oracle   PriceOracle
	engine   *Engine
	seeder   *HistorySeeder
	interval time.Duration
	seedSpec string
	cron     *cron.Cron
	seedJob  cron.EntryID
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates the trading loop. seeder may be nil, in which case no
// price history backfill job is registered.
func NewScheduler(cfg config.Trading, repo database.Repository, oracle PriceOracle, engine *Engine, seeder *HistorySeeder, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		repo:     repo,
		oracle:   oracle,
		engine:   engine,
		seeder:   seeder,
		interval: cfg.TickDuration(),
		seedSpec: cfg.HistorySeedSchedule,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.Named("scheduler"),
	}
}

// Start runs the loop in its own goroutine until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	if s.seeder != nil && s.seedSpec != "" {
		id, err := s.cron.AddFunc(s.seedSpec, func() {
			s.seeder.SeedAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid history seed schedule %q: %w", s.seedSpec, err)
		}
		s.seedJob = id
		s.cron.Start()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.Run(runCtx)
	}()
	return nil
}

// Stop ends the loop after the running tick, if any, completes, and
// unregisters the seed job so a later Start adds it exactly once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.logger.Info("Stopping trading scheduler...")
	s.cancel()
	s.cancel = nil
	<-s.done
	<-s.cron.Stop().Done()
	if s.seedJob != 0 {
		s.cron.Remove(s.seedJob)
		s.seedJob = 0
	}
}

// Run ticks until ctx is cancelled, waiting the full interval after each
// tick regardless of how long it took.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Starting trading loop", zap.Duration("interval", s.interval))
	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("Tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Trading loop stopped")
			return
		case <-time.After(s.interval):
		}
	}
}

// Tick samples the price once and evaluates all users. It is not cancelled
// by ctx once started. A user whose evaluation fails is logged and the loop
// moves on; a panic aborts the rest of the tick and is returned as an error.
func (s *Scheduler) Tick(ctx context.Context) (err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	quote, ok := s.oracle.SpotPrice(ctx)
	if !ok {
		s.logger.Warn("No price available, skipping tick")
		return nil
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return err
	}

	l := s.logger.With(zap.Float64("price", quote.Value), zap.String("source", quote.Source))
	l.Info("Starting trade check", zap.Int("users", len(users)))
	for _, u := range users {
		d, err := s.engine.Evaluate(ctx, u.ID, quote.Value)
		if err != nil {
			l.Error("Failed to evaluate user", zap.Uint("user_id", u.ID), zap.Error(err))
			continue
		}
		if d.Buy != nil || d.Sell != nil || d.Pending != nil {
			l.Info("User evaluated",
				zap.Uint("user_id", u.ID),
				zap.Bool("bought", d.Buy != nil),
				zap.Bool("sold", d.Sell != nil),
				zap.Bool("pending_buy", d.Pending != nil))
		}
	}
	return nil
}
