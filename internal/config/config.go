// Package config defines the top-level configuration for hedgerd and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basislabs/hedgerd/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGERD_* environment variables.
type Config struct {
	Owner      OwnerConfig      `toml:"owner"`
	Assets     AssetsConfig     `toml:"assets"`
	Policy     PolicyConfig     `toml:"policy"`
	Rebalancer RebalancerConfig `toml:"rebalancer"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// OwnerConfig identifies the owner account that is allowed to change policy
// and venue approvals. Either a plain address or an encrypted keystore may be
// supplied; when a keystore is given the owner address is derived from the
// decrypted key.
type OwnerConfig struct {
	Address          string `toml:"address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// AssetConfig describes one tracked asset: its on-chain address and the
// static USD rate (scaled by domain.ValueScale) used to seed the valuation
// service before any live rate arrives.
type AssetConfig struct {
	Address string `toml:"address"`
	RateUSD int64  `toml:"rate_usd"`
}

// AssetsConfig maps the three tracked asset classes to concrete assets.
type AssetsConfig struct {
	ETH AssetConfig `toml:"eth"`
	BTC AssetConfig `toml:"btc"`
	USD AssetConfig `toml:"usd"`
}

// PolicyConfig holds the initial allocation policy in basis points. The
// three targets must sum to 10000.
type PolicyConfig struct {
	TargetETHBps   int64 `toml:"target_eth_bps"`
	TargetBTCBps   int64 `toml:"target_btc_bps"`
	TargetUSDBps   int64 `toml:"target_usd_bps"`
	ThresholdBps   int64 `toml:"threshold_bps"`
	MaxSlippageBps int64 `toml:"max_slippage_bps"`
}

// Policy converts the config section into a domain.AllocationPolicy.
func (p PolicyConfig) Policy() domain.AllocationPolicy {
	return domain.AllocationPolicy{
		TargetETHBps:   p.TargetETHBps,
		TargetBTCBps:   p.TargetBTCBps,
		TargetUSDBps:   p.TargetUSDBps,
		ThresholdBps:   p.ThresholdBps,
		MaxSlippageBps: p.MaxSlippageBps,
	}
}

// RebalancerConfig holds parameters for the automatic rebalance loop.
type RebalancerConfig struct {
	Enabled              bool     `toml:"enabled"`
	Interval             duration `toml:"interval"`
	RateRefresh          duration `toml:"rate_refresh"`
	LockTTL              duration `toml:"lock_ttl"`
	ArchiveInterval      duration `toml:"archive_interval"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
}

// PostgresConfig holds PostgreSQL connection parameters for the journal and
// audit stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for ledger archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Assets: AssetsConfig{
			ETH: AssetConfig{RateUSD: 3_000 * domain.ValueScale},
			BTC: AssetConfig{RateUSD: 60_000 * domain.ValueScale},
			USD: AssetConfig{RateUSD: 1 * domain.ValueScale},
		},
		Policy: PolicyConfig{
			TargetETHBps:   4_000,
			TargetBTCBps:   3_000,
			TargetUSDBps:   3_000,
			ThresholdBps:   200,
			MaxSlippageBps: 50,
		},
		Rebalancer: RebalancerConfig{
			Enabled:              true,
			Interval:             duration{5 * time.Minute},
			RateRefresh:          duration{30 * time.Second},
			LockTTL:              duration{2 * time.Minute},
			ArchiveInterval:      duration{24 * time.Hour},
			ArchiveRetentionDays: 90,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hedgerd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hedgerd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitPerMin: 600,
		},
		Notify: NotifyConfig{
			Events: []string{"rebalanced", "hedge_opened", "policy_updated", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":     true,
	"rebalance": true,
	"once":      true,
	"sim":       true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, rebalance, once, sim)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Owner — sim mode fabricates its own owner, every other mode needs one.
	if c.Mode != "sim" {
		if c.Owner.Address == "" && c.Owner.EncryptedKeyPath == "" {
			errs = append(errs, "owner: either address or encrypted_key_path must be set")
		}
	}
	if c.Owner.Address != "" && !common.IsHexAddress(c.Owner.Address) {
		errs = append(errs, fmt.Sprintf("owner: %q is not a valid hex address", c.Owner.Address))
	}
	if c.Owner.EncryptedKeyPath != "" && c.Owner.KeyPassword == "" {
		errs = append(errs, "owner: key_password is required when encrypted_key_path is set")
	}

	// Assets
	for _, a := range []struct {
		name string
		cfg  AssetConfig
	}{
		{"eth", c.Assets.ETH},
		{"btc", c.Assets.BTC},
		{"usd", c.Assets.USD},
	} {
		if a.cfg.Address != "" && !common.IsHexAddress(a.cfg.Address) {
			errs = append(errs, fmt.Sprintf("assets: %s address %q is not a valid hex address", a.name, a.cfg.Address))
		}
		if a.cfg.RateUSD <= 0 {
			errs = append(errs, fmt.Sprintf("assets: %s rate_usd must be > 0", a.name))
		}
	}

	// Policy
	if err := c.Policy.Policy().Validate(); err != nil {
		errs = append(errs, "policy: "+err.Error())
	}

	// Rebalancer
	if c.Rebalancer.Enabled {
		if c.Rebalancer.Interval.Duration <= 0 {
			errs = append(errs, "rebalancer: interval must be > 0 when enabled")
		}
		if c.Rebalancer.LockTTL.Duration <= 0 {
			errs = append(errs, "rebalancer: lock_ttl must be > 0 when enabled")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
