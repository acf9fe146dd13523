package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Ledger
	VaultAddress   string
	BonusAsset     string
	AcceptedAssets []string
	TransferFeeBps uint64
	FeeSinkAddress string

	// Migration
	LegacyExportPath string

	// Stream
	StreamBufferSize int

	// Cache
	CacheTTL time.Duration

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Ledger defaults
		VaultAddress:   getEnvOrDefault("VAULT_ADDRESS", "0x0000000000000000000000000000000000000001"),
		BonusAsset:     os.Getenv("BONUS_ASSET_ADDRESS"),
		AcceptedAssets: getListOrDefault("ACCEPTED_ASSETS", nil),
		TransferFeeBps: getUint64OrDefault("TRANSFER_FEE_BPS", 30),
		FeeSinkAddress: os.Getenv("FEE_SINK_ADDRESS"),

		// Migration defaults
		LegacyExportPath: getEnvOrDefault("LEGACY_EXPORT_PATH", "legacy_export.json"),

		// Stream defaults
		StreamBufferSize: getIntOrDefault("STREAM_BUFFER_SIZE", 256),

		// Cache defaults
		CacheTTL: getDurationOrDefault("CACHE_TTL", 5*time.Second),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "yieldledger"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "yieldledger123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "yieldledger"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.TransferFeeBps > 10000 {
		return fmt.Errorf("TRANSFER_FEE_BPS must be at most 10000, got %d", c.TransferFeeBps)
	}

	if !common.IsHexAddress(c.VaultAddress) {
		return fmt.Errorf("VAULT_ADDRESS must be a hex address, got %q", c.VaultAddress)
	}

	if c.BonusAsset != "" && !common.IsHexAddress(c.BonusAsset) {
		return fmt.Errorf("BONUS_ASSET_ADDRESS must be a hex address, got %q", c.BonusAsset)
	}

	if c.FeeSinkAddress != "" && !common.IsHexAddress(c.FeeSinkAddress) {
		return fmt.Errorf("FEE_SINK_ADDRESS must be a hex address, got %q", c.FeeSinkAddress)
	}

	for _, asset := range c.AcceptedAssets {
		if !common.IsHexAddress(asset) {
			return fmt.Errorf("ACCEPTED_ASSETS entry must be a hex address, got %q", asset)
		}
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	if c.StreamBufferSize <= 0 {
		return fmt.Errorf("STREAM_BUFFER_SIZE must be positive, got %d", c.StreamBufferSize)
	}

	return nil
}

// PostgresConnString assembles the lib/pq connection string.
func (c *Config) PostgresConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL)
}

// AcceptedAssetAddresses returns the allowlist as parsed addresses.
func (c *Config) AcceptedAssetAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.AcceptedAssets))
	for _, asset := range c.AcceptedAssets {
		out = append(out, common.HexToAddress(asset))
	}
	return out
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getUint64OrDefault(key string, defaultValue uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	uintVal, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return uintVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
