package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"TextPesa"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL      string `env:"DATABASE_URL,required"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"0"`
	RedisURL         string `env:"REDIS_URL,required"`

	Chain struct {
		RPCURL       string        `env:"CHAIN_RPC_URL,required"`
		NativeSymbol string        `env:"CHAIN_NATIVE_SYMBOL" envDefault:"ETH"`
		CallTimeout  time.Duration `env:"CHAIN_CALL_TIMEOUT" envDefault:"15s"`
		ConfirmWait  time.Duration `env:"CHAIN_CONFIRM_TIMEOUT" envDefault:"90s"`
	}

	Vault struct {
		Key string `env:"VAULT_KEY,required"`
	}

	Webhook struct {
		Secret       string `env:"WEBHOOK_SECRET,required"`
		LegacyAPIKey string `env:"WEBHOOK_API_KEY"`
	}

	Gateway struct {
		URL         string        `env:"SMS_GATEWAY_URL"`
		APIKey      string        `env:"SMS_GATEWAY_API_KEY"`
		SenderID    string        `env:"SMS_GATEWAY_SENDER_ID" envDefault:"TextPesa"`
		SendTimeout time.Duration `env:"SMS_GATEWAY_TIMEOUT" envDefault:"10s"`
	}

	Notify struct {
		MaxAttempts   int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
		DrainInterval time.Duration `env:"NOTIFY_DRAIN_INTERVAL" envDefault:"30s"`
		DrainBatch    int           `env:"NOTIFY_DRAIN_BATCH" envDefault:"50"`
		Retention     time.Duration `env:"NOTIFY_RETENTION" envDefault:"720h"`
		SweepInterval time.Duration `env:"NOTIFY_SWEEP_INTERVAL" envDefault:"1h"`
	}

	Registry struct {
		CacheTTL       time.Duration `env:"ASSET_CACHE_TTL" envDefault:"5m"`
		PriceFreshness time.Duration `env:"PRICE_FRESHNESS" envDefault:"10m"`
		PriceRefresh   time.Duration `env:"PRICE_REFRESH_INTERVAL" envDefault:"15m"`
		PriceSourceURL string        `env:"PRICE_SOURCE_URL"`
	}

	Watcher struct {
		PollInterval time.Duration `env:"WATCHER_POLL_INTERVAL" envDefault:"20s"`
		RescanBlocks uint64        `env:"WATCHER_RESCAN_BLOCKS" envDefault:"8"`
	}

	SMSRateLimit   int           `env:"SMS_RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads a .env file when present, then parses configuration from the
// environment and validates values the tag syntax cannot express.
func Load() (Config, error) {
	// Missing .env is fine; production sets variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if _, err := cfg.VaultKey(); err != nil {
		return Config{}, err
	}

	if cfg.Notify.MaxAttempts <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

// VaultKey decodes the key-at-rest encryption key. It must be 32 bytes of hex.
func (c Config) VaultKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Vault.Key)
	if err != nil {
		return nil, fmt.Errorf("VAULT_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("VAULT_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
