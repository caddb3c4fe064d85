package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Binance  Binance  `mapstructure:"binance"`
	Price    Price    `mapstructure:"price"`
	Trading  Trading  `mapstructure:"trading"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Binance holds the configuration for the Binance API.
// Account credentials are per user and live in the database, not here.
type Binance struct {
	BaseURL        string        `mapstructure:"base_url"`
	Testnet        bool          `mapstructure:"testnet"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Price holds the market data provider endpoints.
type Price struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	CoinPaprikaURL string        `mapstructure:"coinpaprika_url"`
	CoinCapURL     string        `mapstructure:"coincap_url"`
	CoinGeckoURL   string        `mapstructure:"coingecko_url"`
	YahooChartURL  string        `mapstructure:"yahoo_chart_url"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Trading holds the configuration for the trading loop.
type Trading struct {
	TickInterval        int    `mapstructure:"tick_interval"` // seconds
	HistorySeedSchedule string `mapstructure:"history_seed_schedule"`
	HistorySeedDays     int    `mapstructure:"history_seed_days"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultTickInterval is used when tick_interval is not positive.
const DefaultTickInterval = 60

// TickDuration returns the scheduler interval.
func (t Trading) TickDuration() time.Duration {
	if t.TickInterval <= 0 {
		return DefaultTickInterval * time.Second
	}
	return time.Duration(t.TickInterval) * time.Second
}

// SetDefaults registers the default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("binance.base_url", "https://api.binance.com/api/v3")
	v.SetDefault("binance.testnet", false)
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.timeout", 10*time.Second)

	v.SetDefault("price.timeout", 10*time.Second)
	v.SetDefault("price.user_agent", "Mozilla/5.0")
	v.SetDefault("price.coinpaprika_url", "https://api.coinpaprika.com/v1")
	v.SetDefault("price.coincap_url", "https://api.coincap.io/v2")
	v.SetDefault("price.coingecko_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("price.yahoo_chart_url", "https://query1.finance.yahoo.com/v8/finance/chart")

	v.SetDefault("trading.tick_interval", DefaultTickInterval)
	v.SetDefault("trading.history_seed_schedule", "0 */15 * * * *")
	v.SetDefault("trading.history_seed_days", 7)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database/trading_bot.db")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (config Config, err error) {
	// The .env file is optional.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)
	// Hosted deployments hand the database over as DATABASE_URL.
	_ = v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_URL")

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
