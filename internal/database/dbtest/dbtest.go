// Package dbtest opens isolated databases for tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"btc-threshold-trader/internal/config"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory SQLite database private to the test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared-cache database survives across pooled connections;
	// the random name keeps parallel tests apart.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewStore returns a Store over a fresh test database.
func NewStore(t *testing.T) *database.Store {
	t.Helper()
	return database.NewStore(Open(t))
}

// SeedUser creates a user with the given settings applied on top of the defaults.
func SeedUser(t *testing.T, db *gorm.DB, email string, mutate func(s *models.Settings)) *models.User {
	t.Helper()

	user := &models.User{Email: email}
	require.NoError(t, db.Create(user).Error)

	settings := models.NewDefaultSettings(user.ID)
	if mutate != nil {
		mutate(settings)
	}
	require.NoError(t, db.Create(settings).Error)
	user.Settings = settings
	return user
}

// OpenFile returns a database created by database.NewDatabase in a file under
// the test's temporary directory, configured as in production.
func OpenFile(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.NewDatabase(config.Database{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "trading_bot.db"),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
