package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the service logger from the loaded configuration.
// Valid levels: debug, info, warn, error; every entry carries the service
// name so ledger events are attributable in aggregated log streams.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	levelStr := cfg.LogLevel
	if levelStr == "" {
		levelStr = "info"
	}

	var level zapcore.Level
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = "json"
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.InitialFields = map[string]interface{}{
		"service": "yieldledger",
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}
