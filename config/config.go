package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoLedger/internal/adapters/logger"
	"cryptoLedger/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Assets tracked by the snapshot and candle jobs
	Assets       []string // e.g., BTC, ETH, SOL
	QuoteAsset   string   // Quote currency appended to build exchange pairs
	AssetMapFile string   // Optional YAML file overriding asset -> pair mapping
	AssetPairs   map[string]string

	// Binance API (public endpoints work without keys)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Price feed
	PriceSource  string        // "rest" or "ws"
	WSStaleAfter time.Duration // Streaming price considered stale after this
	MaxRetries   int
	BackoffMin   time.Duration
	BackoffMax   time.Duration

	// Storage
	StoreDriver string // "sqlite" or "postgres"
	DBPath      string
	DatabaseURL string

	// Schedules
	SnapshotInterval      time.Duration
	CandleInterval        string // Exchange kline interval, e.g. "1m"
	CandleRefreshInterval time.Duration
	RollingWindow         time.Duration

	// Ledger
	LedgerPolicy domain.AccountingPolicy

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Assets
	cfg.Assets = getEnvAsList("ASSETS", []string{"BTC", "ETH", "SOL"})
	if len(cfg.Assets) == 0 {
		errs = append(errs, "ASSETS must list at least one asset")
	}
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))
	cfg.AssetMapFile = getEnv("ASSET_MAP_FILE", "")
	cfg.AssetPairs = DefaultPairs(cfg.Assets, cfg.QuoteAsset)
	if cfg.AssetMapFile != "" {
		overrides, err := LoadAssetMap(cfg.AssetMapFile)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid ASSET_MAP_FILE: %v", err))
		} else {
			for asset, pair := range overrides {
				cfg.AssetPairs[asset] = pair
			}
		}
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Price feed
	cfg.PriceSource = strings.ToLower(getEnv("PRICE_SOURCE", "rest"))
	if cfg.PriceSource != "rest" && cfg.PriceSource != "ws" {
		errs = append(errs, fmt.Sprintf("PRICE_SOURCE must be 'rest' or 'ws', got %q", cfg.PriceSource))
	}
	cfg.WSStaleAfter, err = getEnvAsDurationRequired("WS_STALE_AFTER", 10*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WS_STALE_AFTER: %v", err))
	}
	cfg.MaxRetries, err = getEnvAsIntRequired("MAX_RETRIES", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RETRIES: %v", err))
	} else if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}
	cfg.BackoffMin, err = getEnvAsDurationRequired("BACKOFF_MIN", 500*time.Millisecond)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKOFF_MIN: %v", err))
	}
	cfg.BackoffMax, err = getEnvAsDurationRequired("BACKOFF_MAX", 10*time.Second)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKOFF_MAX: %v", err))
	}
	if cfg.BackoffMin > cfg.BackoffMax {
		errs = append(errs, "BACKOFF_MIN must not exceed BACKOFF_MAX")
	}

	// Storage
	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", "sqlite"))
	cfg.DBPath = getEnv("DB_PATH", "./data/ledger.db")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	switch cfg.StoreDriver {
	case "sqlite":
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set for the sqlite store")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL must be set for the postgres store")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER must be 'sqlite' or 'postgres', got %q", cfg.StoreDriver))
	}

	// Schedules
	cfg.SnapshotInterval, err = getEnvAsDurationRequired("SNAPSHOT_INTERVAL", time.Minute)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SNAPSHOT_INTERVAL: %v", err))
	} else if cfg.SnapshotInterval <= 0 {
		errs = append(errs, "SNAPSHOT_INTERVAL must be positive")
	}
	cfg.CandleInterval = getEnv("CANDLE_INTERVAL", "1m")
	cfg.CandleRefreshInterval, err = getEnvAsDurationRequired("CANDLE_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CANDLE_REFRESH_INTERVAL: %v", err))
	} else if cfg.CandleRefreshInterval <= 0 {
		errs = append(errs, "CANDLE_REFRESH_INTERVAL must be positive")
	}
	cfg.RollingWindow, err = getEnvAsDurationRequired("ROLLING_WINDOW", 2*time.Hour)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ROLLING_WINDOW: %v", err))
	} else if cfg.RollingWindow <= 0 {
		errs = append(errs, "ROLLING_WINDOW must be positive")
	}

	// Ledger
	policy, ok := domain.ParsePolicy(getEnv("LEDGER_POLICY", "wac"))
	if !ok {
		errs = append(errs, "LEDGER_POLICY must be 'wac' or 'fifo'")
	}
	cfg.LedgerPolicy = policy

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// DefaultPairs maps each asset to asset+quote (e.g., BTC -> BTCUSDT).
func DefaultPairs(assets []string, quote string) map[string]string {
	pairs := make(map[string]string, len(assets))
	for _, a := range assets {
		pairs[a] = a + quote
	}
	return pairs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(valueStr, ",") {
		sym := domain.NormalizeSymbol(part)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDurationRequired(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
