package trader

import (
	"context"
	"testing"
	"time"

	"btc-threshold-trader/internal/database/dbtest"
	"btc-threshold-trader/internal/models"
	"btc-threshold-trader/internal/price"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func TestHistorySeeder_FromTrades(t *testing.T) {
	env := setupTest(t)
	user := dbtest.SeedUser(t, env.db, "seed@example.com", func(s *models.Settings) {
		s.PriceHistory = datatypes.JSONSlice[float64]{300}
	})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []float64{100, 200} {
		require.NoError(t, env.repo.CreateTrade(context.Background(), &models.Trade{
			UserID: user.ID, Type: models.TradeTypeBuy, Amount: 1, Price: p,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	seeder := NewHistorySeeder(env.repo, env.oracle, env.locks, 7, zap.NewNop())

	seeded, err := seeder.Seed(context.Background(), user.ID)

	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Equal(t, []float64{100, 200, 300}, []float64(env.settings(t, user.ID).PriceHistory))
	env.oracle.AssertNotCalled(t, "SpotPrice")
}

func TestHistorySeeder_KeepsNewestSeven(t *testing.T) {
	env := setupTest(t)
	user := dbtest.SeedUser(t, env.db, "seed@example.com", func(s *models.Settings) {
		s.PriceHistory = datatypes.JSONSlice[float64]{80, 90}
	})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 9; i++ {
		require.NoError(t, env.repo.CreateTrade(context.Background(), &models.Trade{
			UserID: user.ID, Type: models.TradeTypeBuy, Amount: 1, Price: float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	seeder := NewHistorySeeder(env.repo, env.oracle, env.locks, 7, zap.NewNop())

	_, err := seeder.Seed(context.Background(), user.ID)

	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 7, 8, 9, 80, 90}, []float64(env.settings(t, user.ID).PriceHistory))
}

func TestHistorySeeder_RepeatsCurrentPrice(t *testing.T) {
	env := setupTest(t)
	user := dbtest.SeedUser(t, env.db, "seed@example.com", nil)
	env.oracle.quoteAt(500)
	seeder := NewHistorySeeder(env.repo, env.oracle, env.locks, 7, zap.NewNop())

	seeded, err := seeder.Seed(context.Background(), user.ID)

	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Equal(t, []float64{500, 500, 500, 500, 500, 500, 500}, []float64(env.settings(t, user.ID).PriceHistory))
}

func TestHistorySeeder_NoPriceLeavesHistory(t *testing.T) {
	env := setupTest(t)
	user := dbtest.SeedUser(t, env.db, "seed@example.com", nil)
	env.oracle.On("SpotPrice").Return(price.Quote{}, false)
	seeder := NewHistorySeeder(env.repo, env.oracle, env.locks, 7, zap.NewNop())

	seeded, err := seeder.Seed(context.Background(), user.ID)

	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Empty(t, env.settings(t, user.ID).PriceHistory)
}

func TestHistorySeeder_EnoughHistoryIsNoop(t *testing.T) {
	env := setupTest(t)
	stored := datatypes.JSONSlice[float64]{1, 2, 3, 4, 5, 6, 7}
	user := dbtest.SeedUser(t, env.db, "seed@example.com", func(s *models.Settings) {
		s.PriceHistory = stored
	})
	seeder := NewHistorySeeder(env.repo, env.oracle, env.locks, 7, zap.NewNop())

	seeded, err := seeder.Seed(context.Background(), user.ID)

	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, []float64(stored), []float64(env.settings(t, user.ID).PriceHistory))
}

func TestHistorySeeder_SeedAll(t *testing.T) {
	env := setupTest(t)
	a := dbtest.SeedUser(t, env.db, "a@example.com", nil)
	b := dbtest.SeedUser(t, env.db, "b@example.com", nil)
	env.oracle.quoteAt(42)

	NewHistorySeeder(env.repo, env.oracle, env.locks, 7, zap.NewNop()).SeedAll(context.Background())

	assert.Len(t, env.settings(t, a.ID).PriceHistory, 7)
	assert.Len(t, env.settings(t, b.ID).PriceHistory, 7)
}
