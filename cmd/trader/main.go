package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btc-threshold-trader/internal/api"
	"btc-threshold-trader/internal/binance"
	"btc-threshold-trader/internal/config"
	"btc-threshold-trader/internal/database"
	"btc-threshold-trader/internal/logger"
	"btc-threshold-trader/internal/models"
	"btc-threshold-trader/internal/price"
	"btc-threshold-trader/internal/trader"
	"go.uber.org/zap"
)

func main() {
	issueToken := flag.String("issue-token", "", "create the user with this email if needed, print an API token and exit")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("Configuration loaded")

	if cfg.Server.JWTSecret == "" {
		log.Fatal("server.jwt_secret must be set (SERVER_JWT_SECRET)")
	}
	auth := api.NewAuth(cfg.Server.JWTSecret)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := database.NewStore(db)
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	if *issueToken != "" {
		token, err := tokenFor(context.Background(), repo, auth, *issueToken, *tokenTTL)
		if err != nil {
			log.Fatal("Failed to issue token", zap.String("email", *issueToken), zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	restClient := binance.NewRestClient(&cfg.Binance, log)
	oracle := price.NewDefaultOracle(cfg.Price, restClient, log)

	locks := trader.NewUserLocks()
	executor := trader.NewExecutor(restClient, oracle, log)
	pending := trader.NewPendingGate(repo, oracle, executor, locks, log)
	engine := trader.NewEngine(repo, restClient, executor, pending, locks, log)
	seeder := trader.NewHistorySeeder(repo, oracle, locks, cfg.Trading.HistorySeedDays, log)
	accounts := trader.NewAccounts(repo, restClient, locks, log)
	scheduler := trader.NewScheduler(cfg.Trading, repo, oracle, engine, seeder, log)

	handler := api.NewHandler(accounts, pending, seeder, oracle, log)
	server := api.NewServer(cfg.Server.Port, api.NewRouter(handler, auth, log), log)

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	server.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	scheduler.Stop()

	log.Info("Bot has been shut down.")
}

// tokenFor returns a signed token for the user with email, creating the
// user and its default settings first when it does not exist yet.
func tokenFor(ctx context.Context, repo database.Repository, auth *api.Auth, email string, ttl time.Duration) (string, error) {
	user, err := repo.FindUserByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		user = &models.User{Email: email}
		if err := repo.CreateUser(ctx, user); err != nil {
			return "", err
		}
		if _, err := repo.GetOrCreateSettings(ctx, user.ID); err != nil {
			return "", err
		}
		fmt.Fprintf(os.Stderr, "created user %d (%s)\n", user.ID, email)
	} else if err != nil {
		return "", err
	}
	return auth.GenerateToken(user.ID, ttl)
}
