package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/database/dbtest"
	"btc-threshold-trader/internal/models"
	"btc-threshold-trader/internal/price"
	"btc-threshold-trader/internal/trader"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

// stubMarket answers with a fixed quote and, unless history is set, the
// stored prices as the daily series.
type stubMarket struct {
	quote   price.Quote
	ok      bool
	history []price.Point
}

func (m *stubMarket) SpotPrice(ctx context.Context) (price.Quote, bool) {
	return m.quote, m.ok
}

func (m *stubMarket) HistoricalDaily(ctx context.Context, days int, stored []float64) []price.Point {
	if m.history != nil {
		return m.history
	}
	points := make([]price.Point, len(stored))
	for i, p := range stored {
		points[i] = price.Point{Timestamp: int64(i), Price: p}
	}
	return points
}

func (m *stubMarket) at(p float64) {
	m.quote, m.ok = price.Quote{Value: p, Source: "stub"}, true
}

// offlineExchange fails every call; the API tests only use demo users.
type offlineExchange struct{}

var errOffline = errors.New("exchange offline")

func (offlineExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, errOffline
}

func (offlineExchange) GetAccountBalances(ctx context.Context, creds binance.Credentials) (binance.Balances, error) {
	return binance.Balances{}, fmt.Errorf("%w: %w", binance.ErrRequestFailed, errOffline)
}

func (offlineExchange) CreateOrder(ctx context.Context, creds binance.Credentials, side string, quantity float64) (*binance.CreateOrderResponse, error) {
	return nil, fmt.Errorf("%w: %w", binance.ErrOrderRejected, errOffline)
}

type apiEnv struct {
	db     *gorm.DB
	repo   *database.Store
	market *stubMarket
	gate   *trader.PendingGate
	auth   *Auth
	router *mux.Router
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()

	db := dbtest.Open(t)
	repo := database.NewStore(db)
	market := &stubMarket{}
	locks := trader.NewUserLocks()
	logger := zap.NewNop()
	exchange := offlineExchange{}

	executor := trader.NewExecutor(exchange, market, logger)
	gate := trader.NewPendingGate(repo, market, executor, locks, logger)
	accounts := trader.NewAccounts(repo, exchange, locks, logger)
	seeder := trader.NewHistorySeeder(repo, market, locks, historyDays, logger)
	auth := NewAuth(testSecret)

	handler := NewHandler(accounts, gate, seeder, market, logger)
	return &apiEnv{
		db:     db,
		repo:   repo,
		market: market,
		gate:   gate,
		auth:   auth,
		router: NewRouter(handler, auth, logger),
	}
}

// do performs an authenticated request as userID and returns the recorder.
func (e *apiEnv) do(t *testing.T, userID uint, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		token, err := e.auth.GenerateToken(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, 0, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, 0, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewAuth("other-secret").GenerateToken(1, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ExpiredToken(t *testing.T) {
	auth := NewAuth(testSecret)
	token, err := auth.GenerateToken(1, -time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.Error(t, err)
}

func TestPrice(t *testing.T) {
	env := setupAPI(t)
	user := dbtest.SeedUser(t, env.db, "user@example.com", nil)

	rec := env.do(t, user.ID, http.MethodGet, "/api/price", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.market.at(64000)
	rec = env.do(t, user.ID, http.MethodGet, "/api/price", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, price.Quote{Value: 64000, Source: "stub"}, decode[price.Quote](t, rec))
}

func TestSettings(t *testing.T) {
	env := setupAPI(t)
	user := dbtest.SeedUser(t, env.db, "user@example.com", nil)

	rec := env.do(t, user.ID, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[models.Settings](t, rec)
	assert.True(t, s.DemoMode)
	assert.False(t, s.IsTrading)

	rec = env.do(t, user.ID, http.MethodPut, "/api/settings", map[string]any{
		"buy_threshold": 29000, "sell_threshold": 35000, "trade_amount": 0.01, "is_trading": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	s = decode[models.Settings](t, rec)
	assert.Equal(t, 29000.0, s.BuyThreshold)
	assert.True(t, s.IsTrading)

	rec = env.do(t, user.ID, http.MethodPut, "/api/settings", map[string]any{"sell_all_percentage": 500})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader([]byte("{")))
	token, err := env.auth.GenerateToken(user.ID, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_UnknownUser(t *testing.T) {
	env := setupAPI(t)

	rec := env.do(t, 404, http.MethodGet, "/api/settings", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBalances(t *testing.T) {
	env := setupAPI(t)
	demo := dbtest.SeedUser(t, env.db, "demo@example.com", nil)
	live := dbtest.SeedUser(t, env.db, "live@example.com", func(s *models.Settings) { s.DemoMode = false })

	rec := env.do(t, demo.ID, http.MethodGet, "/api/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, trader.AccountBalances{BTC: 1, USDT: 50000, Demo: true}, decode[trader.AccountBalances](t, rec))

	rec = env.do(t, live.ID, http.MethodGet, "/api/balances", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	live.APIKey, live.APISecret = "k", "s"
	require.NoError(t, env.repo.SaveUser(context.Background(), live))
	rec = env.do(t, live.ID, http.MethodGet, "/api/balances", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTradesAndStatistics(t *testing.T) {
	env := setupAPI(t)
	user := dbtest.SeedUser(t, env.db, "user@example.com", nil)
	now := time.Now().UTC()
	for i, profit := range []float64{0, 25} {
		require.NoError(t, env.repo.CreateTrade(context.Background(), &models.Trade{
			UserID: user.ID, Type: []string{models.TradeTypeBuy, models.TradeTypeSell}[i],
			Amount: 0.1, Price: 30000, Profit: profit, Timestamp: now.Add(time.Duration(i-2) * time.Hour),
		}))
	}
	_, _, err := env.gate.Propose(context.Background(), user.ID, 29000, 0.1)
	require.NoError(t, err)

	rec := env.do(t, user.ID, http.MethodGet, "/api/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trades := decode[[]models.Trade](t, rec)
	require.Len(t, trades, 2)
	assert.Equal(t, models.TradeTypeSell, trades[0].Type)

	rec = env.do(t, user.ID, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.Equal(t, 25.0, stats["total_profit"])
	assert.Equal(t, 50.0, stats["win_rate"])
	assert.Equal(t, 2.0, stats["total_trades"])
	assert.Equal(t, 1.0, stats["pending_count"])
}

func TestMarket(t *testing.T) {
	env := setupAPI(t)
	user := dbtest.SeedUser(t, env.db, "user@example.com", nil)
	env.market.at(110)

	rec := env.do(t, user.ID, http.MethodGet, "/api/market", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MarketResponse](t, rec)
	// the empty history is backfilled with the current price
	assert.Len(t, resp.History, 7)
	require.NotNil(t, resp.Price)
	assert.Equal(t, 110.0, resp.Price.Value)
	assert.Equal(t, 110.0, resp.Summary.MovingAverage)
	assert.Zero(t, resp.Summary.PercentageChange)
}

func TestMarket_WithoutPrice(t *testing.T) {
	env := setupAPI(t)
	user := dbtest.SeedUser(t, env.db, "user@example.com", nil)
	env.market.history = []price.Point{{Timestamp: 1, Price: 10}, {Timestamp: 2, Price: 30}}

	rec := env.do(t, user.ID, http.MethodGet, "/api/market", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MarketResponse](t, rec)
	assert.Nil(t, resp.Price)
	assert.Equal(t, 20.0, resp.Summary.MovingAverage)
	assert.Equal(t, 10.0, resp.Summary.Low)
	assert.Equal(t, 30.0, resp.Summary.High)
}

func TestPendingBuys(t *testing.T) {
	env := setupAPI(t)
	owner := dbtest.SeedUser(t, env.db, "owner@example.com", func(s *models.Settings) {
		s.LastBuyPrice = 110
	})
	intruder := dbtest.SeedUser(t, env.db, "intruder@example.com", nil)
	pending, _, err := env.gate.Propose(context.Background(), owner.ID, 100, 0.5)
	require.NoError(t, err)
	confirmPath := fmt.Sprintf("/api/pending-buys/%d/confirm", pending.ID)
	rejectPath := fmt.Sprintf("/api/pending-buys/%d/reject", pending.ID)

	rec := env.do(t, owner.ID, http.MethodGet, "/api/pending-buys", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.PendingBuy](t, rec), 1)

	rec = env.do(t, intruder.ID, http.MethodPost, confirmPath, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, intruder.ID, http.MethodPost, rejectPath, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.market.at(102)
	rec = env.do(t, owner.ID, http.MethodPost, confirmPath, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	drift := decode[driftResponse](t, rec)
	assert.InDelta(t, 2.0, drift.Percent, 1e-9)
	assert.Equal(t, 102.0, drift.Current)

	env.market.at(100.5)
	rec = env.do(t, owner.ID, http.MethodPost, confirmPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trade := decode[models.Trade](t, rec)
	assert.Equal(t, 100.5, trade.Price)

	rec = env.do(t, owner.ID, http.MethodPost, confirmPath, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(t, owner.ID, http.MethodPost, rejectPath, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, owner.ID, http.MethodPost, "/api/pending-buys/9999/confirm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectPendingBuy(t *testing.T) {
	env := setupAPI(t)
	owner := dbtest.SeedUser(t, env.db, "owner@example.com", nil)
	pending, _, err := env.gate.Propose(context.Background(), owner.ID, 100, 0.5)
	require.NoError(t, err)

	rec := env.do(t, owner.ID, http.MethodPost, fmt.Sprintf("/api/pending-buys/%d/reject", pending.ID), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.PendingBuy](t, rec).IsRejected)
	rec = env.do(t, owner.ID, http.MethodGet, "/api/pending-buys", nil)
	assert.Empty(t, decode[[]models.PendingBuy](t, rec))
}
