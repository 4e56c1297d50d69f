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
// built-in defaults, applies CONVICTION_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CONVICTION_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Owner, "CONVICTION_ENGINE_OWNER")
	setStr(&cfg.Engine.Treasury, "CONVICTION_ENGINE_TREASURY")
	setUint32(&cfg.Engine.FeeBps, "CONVICTION_ENGINE_FEE_BPS")
	setStr(&cfg.Engine.MinStake, "CONVICTION_ENGINE_MIN_STAKE")
	setDuration(&cfg.Engine.MaxStaleness, "CONVICTION_ENGINE_MAX_STALENESS")

	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "CONVICTION_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "CONVICTION_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "CONVICTION_OPERATOR_KEY_PASSWORD")
	setStr(&cfg.Operator.APIURL, "CONVICTION_OPERATOR_API_URL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "CONVICTION_STORE_BACKEND")
	setStr(&cfg.Postgres.DSN, "CONVICTION_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "CONVICTION_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CONVICTION_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CONVICTION_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CONVICTION_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CONVICTION_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CONVICTION_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CONVICTION_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CONVICTION_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CONVICTION_POSTGRES_RUN_MIGRATIONS")
	setStr(&cfg.SQLite.Path, "CONVICTION_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CONVICTION_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CONVICTION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONVICTION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONVICTION_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONVICTION_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CONVICTION_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONVICTION_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "CONVICTION_REDIS_PRICE_TTL")
	setDuration(&cfg.Redis.MarketTTL, "CONVICTION_REDIS_MARKET_TTL")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "CONVICTION_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "CONVICTION_KAFKA_BROKERS")
	setStr(&cfg.Kafka.EventsTopic, "CONVICTION_KAFKA_EVENTS_TOPIC")
	setStr(&cfg.Kafka.PriceTopic, "CONVICTION_KAFKA_PRICE_TOPIC")
	setStr(&cfg.Kafka.ExpiryTopic, "CONVICTION_KAFKA_EXPIRY_TOPIC")
	setStr(&cfg.Kafka.GroupID, "CONVICTION_KAFKA_GROUP_ID")

	// ── Oracle ──
	setStr(&cfg.Oracle.ChainlinkRPCURL, "CONVICTION_ORACLE_CHAINLINK_RPC_URL")
	setStr(&cfg.Oracle.PythHermesURL, "CONVICTION_ORACLE_PYTH_HERMES_URL")
	setFloat64(&cfg.Oracle.PythRPS, "CONVICTION_ORACLE_PYTH_RPS")
	setInt(&cfg.Oracle.PythBurst, "CONVICTION_ORACLE_PYTH_BURST")
	setInt(&cfg.Oracle.MaxConfBps, "CONVICTION_ORACLE_MAX_CONF_BPS")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.Interval, "CONVICTION_SCHEDULER_INTERVAL")
	setInt(&cfg.Scheduler.BatchCap, "CONVICTION_SCHEDULER_BATCH_CAP")
	setInt(&cfg.Scheduler.ScanWindow, "CONVICTION_SCHEDULER_SCAN_WINDOW")
	setDuration(&cfg.Scheduler.LockTTL, "CONVICTION_SCHEDULER_LOCK_TTL")

	// ── S3 / archive ──
	setStr(&cfg.S3.Endpoint, "CONVICTION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CONVICTION_S3_REGION")
	setStr(&cfg.S3.Bucket, "CONVICTION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CONVICTION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CONVICTION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CONVICTION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CONVICTION_S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "CONVICTION_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "CONVICTION_ARCHIVE_CRON")
	setStr(&cfg.Archive.Prefix, "CONVICTION_ARCHIVE_PREFIX")
	setDuration(&cfg.Archive.Lookback, "CONVICTION_ARCHIVE_LOOKBACK")

	// ── Server ──
	setInt(&cfg.Server.Port, "CONVICTION_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CONVICTION_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "CONVICTION_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CONVICTION_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.AuthSkew, "CONVICTION_SERVER_AUTH_SKEW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CONVICTION_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CONVICTION_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CONVICTION_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CONVICTION_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONVICTION_MODE")
	setStr(&cfg.LogLevel, "CONVICTION_LOG_LEVEL")
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

func setUint32(dst *uint32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
