package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"btc-threshold-trader/internal/config"
	"btc-threshold-trader/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the configured database and migrates the schema.
func NewDatabase(cfg config.Database) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if isSQLite(cfg.Driver) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		// SQLite allows a single writer; every query shares one connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func isSQLite(driver string) bool {
	return driver == "" || driver == "sqlite"
}

// sqlitePragmas are applied to file backed databases: WAL journal, a wait on
// locks held by other processes, and write locks taken when a transaction begins.
const sqlitePragmas = "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

// sqliteDSN appends the connection pragmas to a plain file path.
func sqliteDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + sqlitePragmas
}

func dialectorFor(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "postgresql":
		return postgres.Open(cfg.DSN), nil
	case "", "sqlite":
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
		return sqlite.Open(sqliteDSN(cfg.DSN)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// ensureSQLiteDir creates the parent directory of a file backed database.
func ensureSQLiteDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

// AutoMigrate creates or updates the tables for all models. Existing rows are kept.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Settings{}, &models.Trade{}, &models.PendingBuy{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
