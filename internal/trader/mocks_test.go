package trader

import (
	"context"
	"testing"

	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/database/dbtest"
	"btc-threshold-trader/internal/models"
	"btc-threshold-trader/internal/price"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockRestClient is a mock implementation of binance.RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRestClient) GetAccountBalances(ctx context.Context, creds binance.Credentials) (binance.Balances, error) {
	args := m.Called(creds)
	return args.Get(0).(binance.Balances), args.Error(1)
}

func (m *MockRestClient) CreateOrder(ctx context.Context, creds binance.Credentials, side string, quantity float64) (*binance.CreateOrderResponse, error) {
	args := m.Called(creds, side, quantity)
	resp, _ := args.Get(0).(*binance.CreateOrderResponse)
	return resp, args.Error(1)
}

// MockOracle is a mock implementation of PriceOracle.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) SpotPrice(ctx context.Context) (price.Quote, bool) {
	args := m.Called()
	return args.Get(0).(price.Quote), args.Bool(1)
}

// quoteAt makes the oracle answer with p from a fixed source.
func (m *MockOracle) quoteAt(p float64) *mock.Call {
	return m.On("SpotPrice").Return(price.Quote{Value: p, Source: "test"}, true)
}

type testEnv struct {
	db       *gorm.DB
	repo     *database.Store
	exchange *MockRestClient
	oracle   *MockOracle
	locks    *UserLocks
	executor *Executor
	gate     *PendingGate
	engine   *Engine
}

// setupTest wires the trading components over an in-memory database and mocks.
func setupTest(t *testing.T) *testEnv {
	t.Helper()
	return setupTestWithDB(t, dbtest.Open(t))
}

func setupTestWithDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()

	env := &testEnv{
		db:       db,
		repo:     database.NewStore(db),
		exchange: new(MockRestClient),
		oracle:   new(MockOracle),
		locks:    NewUserLocks(),
	}
	logger := zap.NewNop()
	env.executor = NewExecutor(env.exchange, env.oracle, logger)
	env.gate = NewPendingGate(env.repo, env.oracle, env.executor, env.locks, logger)
	env.engine = NewEngine(env.repo, env.exchange, env.executor, env.gate, env.locks, logger)
	return env
}

func (e *testEnv) settings(t *testing.T, userID uint) *models.Settings {
	t.Helper()
	s, err := e.repo.GetOrCreateSettings(context.Background(), userID)
	require.NoError(t, err)
	return s
}

func (e *testEnv) trades(t *testing.T, userID uint) []models.Trade {
	t.Helper()
	trades, err := e.repo.ListTrades(context.Background(), userID)
	require.NoError(t, err)
	return trades
}

func (e *testEnv) outstanding(t *testing.T, userID uint) []models.PendingBuy {
	t.Helper()
	pending, err := e.gate.Outstanding(context.Background(), userID)
	require.NoError(t, err)
	return pending
}

// tradingUser seeds a demo user with trading enabled and no position.
func tradingUser(t *testing.T, env *testEnv, mutate func(s *models.Settings)) *models.User {
	return dbtest.SeedUser(t, env.db, "trader@example.com", func(s *models.Settings) {
		s.IsTrading = true
		s.DemoBTCBalance = 0
		s.DemoUSDTBalance = 50000
		if mutate != nil {
			mutate(s)
		}
	})
}
