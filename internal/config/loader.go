package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGERD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HEDGERD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Owner ──
	setStr(&cfg.Owner.Address, "HEDGERD_OWNER_ADDRESS")
	setStr(&cfg.Owner.EncryptedKeyPath, "HEDGERD_OWNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Owner.KeyPassword, "HEDGERD_OWNER_KEY_PASSWORD")

	// ── Assets ──
	setStr(&cfg.Assets.ETH.Address, "HEDGERD_ASSETS_ETH_ADDRESS")
	setInt64(&cfg.Assets.ETH.RateUSD, "HEDGERD_ASSETS_ETH_RATE_USD")
	setStr(&cfg.Assets.BTC.Address, "HEDGERD_ASSETS_BTC_ADDRESS")
	setInt64(&cfg.Assets.BTC.RateUSD, "HEDGERD_ASSETS_BTC_RATE_USD")
	setStr(&cfg.Assets.USD.Address, "HEDGERD_ASSETS_USD_ADDRESS")
	setInt64(&cfg.Assets.USD.RateUSD, "HEDGERD_ASSETS_USD_RATE_USD")

	// ── Policy ──
	setInt64(&cfg.Policy.TargetETHBps, "HEDGERD_POLICY_TARGET_ETH_BPS")
	setInt64(&cfg.Policy.TargetBTCBps, "HEDGERD_POLICY_TARGET_BTC_BPS")
	setInt64(&cfg.Policy.TargetUSDBps, "HEDGERD_POLICY_TARGET_USD_BPS")
	setInt64(&cfg.Policy.ThresholdBps, "HEDGERD_POLICY_THRESHOLD_BPS")
	setInt64(&cfg.Policy.MaxSlippageBps, "HEDGERD_POLICY_MAX_SLIPPAGE_BPS")

	// ── Rebalancer ──
	setBool(&cfg.Rebalancer.Enabled, "HEDGERD_REBALANCER_ENABLED")
	setDuration(&cfg.Rebalancer.Interval, "HEDGERD_REBALANCER_INTERVAL")
	setDuration(&cfg.Rebalancer.RateRefresh, "HEDGERD_REBALANCER_RATE_REFRESH")
	setDuration(&cfg.Rebalancer.LockTTL, "HEDGERD_REBALANCER_LOCK_TTL")
	setDuration(&cfg.Rebalancer.ArchiveInterval, "HEDGERD_REBALANCER_ARCHIVE_INTERVAL")
	setInt(&cfg.Rebalancer.ArchiveRetentionDays, "HEDGERD_REBALANCER_ARCHIVE_RETENTION_DAYS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HEDGERD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HEDGERD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGERD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGERD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGERD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGERD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGERD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGERD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGERD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGERD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HEDGERD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGERD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGERD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGERD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGERD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGERD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HEDGERD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HEDGERD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGERD_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGERD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGERD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGERD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HEDGERD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HEDGERD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGERD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGERD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HEDGERD_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGERD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "HEDGERD_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGERD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGERD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGERD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGERD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGERD_MODE")
	setStr(&cfg.LogLevel, "HEDGERD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
