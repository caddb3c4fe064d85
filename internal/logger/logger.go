package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "btc-threshold-trader"

// NewLogger creates a zap.Logger for the given level ("debug", "info", ...)
// and format ("json" for production output, anything else for console).
// An empty level means info.
func NewLogger(level string, format string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.InitialFields = map[string]interface{}{"service": serviceName}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.Level = zap.NewAtomicLevelAt(logLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
