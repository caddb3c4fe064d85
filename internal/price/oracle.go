package price

import (
	"context"
	"time"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/config"
	"go.uber.org/zap"
)

// Quote is a sampled spot price and the provider that answered.
type Quote struct {
	Value  float64 `json:"price"`
	Source string  `json:"source"`
}

// Oracle resolves the BTC/USDT spot price through an ordered chain of
// providers and the daily series through an ordered chain of history sources.
type Oracle struct {
	providers []Provider
	history   []HistorySource
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewOracle creates an Oracle that tries providers and sources in the given order.
// A non-positive timeout leaves each attempt bounded only by the caller's context.
func NewOracle(providers []Provider, history []HistorySource, timeout time.Duration, logger *zap.Logger) *Oracle {
	return &Oracle{
		providers: providers,
		history:   history,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// NewDefaultOracle wires the production chain: CoinPaprika, CoinCap,
// CoinGecko and finally the Binance public ticker for spot prices, Yahoo
// then CoinGecko for the daily series.
func NewDefaultOracle(cfg config.Price, exchange binance.RestClientInterface, logger *zap.Logger) *Oracle {
	providers := []Provider{
		NewCoinPaprika(cfg.CoinPaprikaURL),
		NewCoinCap(cfg.CoinCapURL, cfg.UserAgent),
		NewCoinGecko(cfg.CoinGeckoURL),
		NewBinanceTicker(exchange),
	}
	history := []HistorySource{
		NewYahooChart(cfg.YahooChartURL),
		NewCoinGeckoChart(cfg.CoinGeckoURL),
	}
	return NewOracle(providers, history, cfg.Timeout, logger)
}

func (o *Oracle) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// SpotPrice returns the first valid price in provider order. ok is false when
// every provider failed; callers must not trade in that case.
func (o *Oracle) SpotPrice(ctx context.Context) (Quote, bool) {
	for _, p := range o.providers {
		attemptCtx, cancel := o.attemptContext(ctx)
		value, err := p.FetchPrice(attemptCtx)
		cancel()
		if err != nil {
			o.logger.Warn("Price provider failed", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		o.logger.Debug("Fetched spot price", zap.String("provider", p.Name()), zap.Float64("price", value))
		return Quote{Value: value, Source: p.Name()}, true
	}
	o.logger.Error("All price providers failed")
	return Quote{}, false
}

// HistoricalDaily returns up to days daily prices, oldest first, and nothing
// for a non-positive days. When every source fails it falls back to the tail
// of stored, stamped one day apart and ending now.
func (o *Oracle) HistoricalDaily(ctx context.Context, days int, stored []float64) []Point {
	if days <= 0 {
		return nil
	}
	for _, s := range o.history {
		attemptCtx, cancel := o.attemptContext(ctx)
		points, err := s.FetchDaily(attemptCtx, days)
		cancel()
		if err != nil {
			o.logger.Warn("History source failed", zap.String("source", s.Name()), zap.Error(err))
			continue
		}
		return points
	}

	if len(stored) > days {
		stored = stored[len(stored)-days:]
	}
	o.logger.Warn("Using stored price history as daily series", zap.Int("points", len(stored)))

	now := o.now()
	points := make([]Point, len(stored))
	for i, p := range stored {
		age := time.Duration(len(stored)-1-i) * 24 * time.Hour
		points[i] = Point{Timestamp: now.Add(-age).UnixMilli(), Price: p}
	}
	return points
}
