package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btc-threshold-trader/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines the persistence operations the trading core relies on.
type Repository interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error

	GetOrCreateSettings(ctx context.Context, userID uint) (*models.Settings, error)
	// LockSettings is GetOrCreateSettings with a row lock held until the
	// surrounding transaction ends, where the database supports it.
	LockSettings(ctx context.Context, userID uint) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error

	CreateTrade(ctx context.Context, trade *models.Trade) error
	ListTrades(ctx context.Context, userID uint) ([]models.Trade, error)
	RecentTrades(ctx context.Context, userID uint, limit int) ([]models.Trade, error)

	CreatePendingBuy(ctx context.Context, pending *models.PendingBuy) error
	GetPendingBuy(ctx context.Context, id uint) (*models.PendingBuy, error)
	SavePendingBuy(ctx context.Context, pending *models.PendingBuy) error
	// FindOutstandingPendingBuy returns nil, nil when the user has none.
	FindOutstandingPendingBuy(ctx context.Context, userID uint) (*models.PendingBuy, error)
	ListOutstandingPendingBuys(ctx context.Context, userID uint) ([]models.PendingBuy, error)

	// Transaction runs fn against a repository bound to a single database
	// transaction. Returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

// Store is the gorm implementation of Repository.
type Store struct {
	db *gorm.DB
}

// ensure Store implements the interface
var _ Repository = (*Store)(nil)

// NewStore wraps an open gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, wrapNotFound(err))
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to find user %q: %w", email, wrapNotFound(err))
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user %d: %w", user.ID, err)
	}
	return nil
}

func (s *Store) GetOrCreateSettings(ctx context.Context, userID uint) (*models.Settings, error) {
	return s.settings(ctx, s.db.WithContext(ctx), userID)
}

func (s *Store) LockSettings(ctx context.Context, userID uint) (*models.Settings, error) {
	return s.settings(ctx, s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (s *Store) settings(ctx context.Context, q *gorm.DB, userID uint) (*models.Settings, error) {
	var settings models.Settings
	err := q.Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get settings for user %d: %w", userID, err)
	}

	created := models.NewDefaultSettings(userID)
	if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, fmt.Errorf("failed to create default settings for user %d: %w", userID, err)
	}
	return created, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *models.Settings) error {
	if err := s.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings for user %d: %w", settings.UserID, err)
	}
	return nil
}

func (s *Store) CreateTrade(ctx context.Context, trade *models.Trade) error {
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to record %s trade: %w", trade.Type, err)
	}
	return nil
}

func (s *Store) ListTrades(ctx context.Context, userID uint) ([]models.Trade, error) {
	return s.RecentTrades(ctx, userID, -1)
}

// RecentTrades returns the newest trades first. A negative limit returns all of them.
func (s *Store) RecentTrades(ctx context.Context, userID uint, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp desc").Order("id desc").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for user %d: %w", userID, err)
	}
	return trades, nil
}

func (s *Store) CreatePendingBuy(ctx context.Context, pending *models.PendingBuy) error {
	if pending.Timestamp.IsZero() {
		pending.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(pending).Error; err != nil {
		return fmt.Errorf("failed to create pending buy: %w", err)
	}
	return nil
}

func (s *Store) GetPendingBuy(ctx context.Context, id uint) (*models.PendingBuy, error) {
	var pending models.PendingBuy
	if err := s.db.WithContext(ctx).First(&pending, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get pending buy %d: %w", id, wrapNotFound(err))
	}
	return &pending, nil
}

func (s *Store) SavePendingBuy(ctx context.Context, pending *models.PendingBuy) error {
	if err := s.db.WithContext(ctx).Save(pending).Error; err != nil {
		return fmt.Errorf("failed to save pending buy %d: %w", pending.ID, err)
	}
	return nil
}

func (s *Store) outstanding(ctx context.Context, userID uint) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND is_confirmed = ? AND is_rejected = ?", userID, false, false).
		Order("id")
}

func (s *Store) FindOutstandingPendingBuy(ctx context.Context, userID uint) (*models.PendingBuy, error) {
	var pending models.PendingBuy
	err := s.outstanding(ctx, userID).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending buy for user %d: %w", userID, err)
	}
	return &pending, nil
}

func (s *Store) ListOutstandingPendingBuys(ctx context.Context, userID uint) ([]models.PendingBuy, error) {
	var pending []models.PendingBuy
	if err := s.outstanding(ctx, userID).Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending buys for user %d: %w", userID, err)
	}
	return pending, nil
}

func (s *Store) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
