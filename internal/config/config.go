// Package config defines the top-level configuration for convictiond and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CONVICTION_* environment
// variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Operator  OperatorConfig  `toml:"operator"`
	Store     StoreConfig     `toml:"store"`
	Postgres  PostgresConfig  `toml:"postgres"`
	SQLite    SQLiteConfig    `toml:"sqlite"`
	Redis     RedisConfig     `toml:"redis"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Oracle    OracleConfig    `toml:"oracle"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Funds     FundsConfig     `toml:"funds"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig holds the administrative parameters the engine starts with.
type EngineConfig struct {
	Owner        string   `toml:"owner"`
	Treasury     string   `toml:"treasury"`
	FeeBps       uint32   `toml:"fee_bps"`
	MinStake     string   `toml:"min_stake"`
	MaxStaleness duration `toml:"max_staleness"`
}

// OperatorConfig holds the key convictionctl signs requests with.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	APIURL           string `toml:"api_url"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is one of memory, postgres or sqlite. memory keeps nothing
	// across restarts and suits tests and local runs only.
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// SQLiteConfig holds the SQLite database location.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. When Enabled is false the
// process runs without distributed locks, caches or the signal bus.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
	MarketTTL  duration `toml:"market_ttl"`
}

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Enabled     bool     `toml:"enabled"`
	Brokers     []string `toml:"brokers"`
	EventsTopic string   `toml:"events_topic"`
	PriceTopic  string   `toml:"price_topic"`
	ExpiryTopic string   `toml:"expiry_topic"`
	GroupID     string   `toml:"group_id"`
}

// OracleConfig configures the price sources. A source with an empty
// endpoint is not registered.
type OracleConfig struct {
	ChainlinkRPCURL string  `toml:"chainlink_rpc_url"`
	PythHermesURL   string  `toml:"pyth_hermes_url"`
	PythRPS         float64 `toml:"pyth_rps"`
	PythBurst       int     `toml:"pyth_burst"`
	// MaxConfBps rejects a price whose reported confidence interval is
	// wider than this share of the price. Zero disables the check.
	MaxConfBps int `toml:"max_conf_bps"`
}

// SchedulerConfig controls automated resolution.
type SchedulerConfig struct {
	Interval   duration `toml:"interval"`
	BatchCap   int      `toml:"batch_cap"`
	ScanWindow int      `toml:"scan_window"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the settlement archive job.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Cron     string   `toml:"cron"`
	Prefix   string   `toml:"prefix"`
	Lookback duration `toml:"lookback"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	AuthSkew    duration `toml:"auth_skew"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// FundsConfig seeds balances in the in-process ledger, keyed by address.
type FundsConfig struct {
	Balances map[string]string `toml:"balances"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			FeeBps:       100,
			MinStake:     "1000000000000000",
			MaxStaleness: duration{time.Hour},
		},
		Operator: OperatorConfig{
			APIURL: "http://localhost:8000",
		},
		Store: StoreConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "conviction",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{Path: "data/conviction.db"},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			PriceTTL:   duration{10 * time.Minute},
			MarketTTL:  duration{30 * time.Second},
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			EventsTopic: "conviction.events",
			PriceTopic:  "price.ticks",
			ExpiryTopic: "market.expiry",
			GroupID:     "convictiond",
		},
		Oracle: OracleConfig{
			PythRPS:    5,
			PythBurst:  5,
			MaxConfBps: 200,
		},
		Scheduler: SchedulerConfig{
			Interval:   duration{30 * time.Second},
			BatchCap:   50,
			ScanWindow: 500,
			LockTTL:    duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "conviction-settlements",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:     "0 3 * * *",
			Prefix:   "settlements",
			Lookback: duration{7 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			AuthSkew:    duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "resolution_failed", "reward_claimed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":    true,
	"scheduler": true,
	"ingest":    true,
	"archive":   true,
	"full":      true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"postgres": true,
	"sqlite":   true,
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

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, scheduler, ingest, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if !common.IsHexAddress(c.Engine.Owner) || common.HexToAddress(c.Engine.Owner) == (common.Address{}) {
		errs = append(errs, "engine: owner must be a non-zero hex address")
	}
	if !common.IsHexAddress(c.Engine.Treasury) || common.HexToAddress(c.Engine.Treasury) == (common.Address{}) {
		errs = append(errs, "engine: treasury must be a non-zero hex address")
	}
	if c.Engine.FeeBps > domain.BasisPointsDenominator {
		errs = append(errs, fmt.Sprintf("engine: fee_bps must not exceed %d, got %d", domain.BasisPointsDenominator, c.Engine.FeeBps))
	}
	if _, err := domain.ParseAmount(c.Engine.MinStake); err != nil {
		errs = append(errs, fmt.Sprintf("engine: min_stake %q is not a base-unit integer", c.Engine.MinStake))
	}
	if c.Engine.MaxStaleness.Duration <= 0 {
		errs = append(errs, "engine: max_staleness must be positive")
	}

	// Store
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres, sqlite)", c.Store.Backend))
	}
	if backend == "postgres" {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if backend == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}
	// Several processes share state only through a database.
	if backend == "memory" && (mode == "scheduler" || mode == "archive") {
		errs = append(errs, fmt.Sprintf("store: mode %q needs a shared backend (postgres or sqlite)", c.Mode))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Kafka
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka: brokers must not be empty when enabled")
	}
	if mode == "ingest" && !c.Kafka.Enabled {
		errs = append(errs, "kafka: ingest mode requires kafka.enabled")
	}
	if mode == "ingest" && !c.Redis.Enabled {
		errs = append(errs, "redis: ingest mode requires redis.enabled for the price cache")
	}

	if c.Oracle.MaxConfBps < 0 || c.Oracle.MaxConfBps > 10000 {
		errs = append(errs, "oracle: max_conf_bps must be within [0, 10000]")
	}

	// Scheduler
	if c.Scheduler.Interval.Duration <= 0 {
		errs = append(errs, "scheduler: interval must be positive")
	}
	if c.Scheduler.BatchCap < 1 {
		errs = append(errs, "scheduler: batch_cap must be >= 1")
	}
	if c.Scheduler.ScanWindow < 1 {
		errs = append(errs, "scheduler: scan_window must be >= 1")
	}

	// Archive
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when the archive runs")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Server
	if mode == "server" || mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.AuthSkew.Duration <= 0 {
			errs = append(errs, "server: auth_skew must be positive")
		}
	}

	// Funds
	for addr, amount := range c.Funds.Balances {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("funds: %q is not a hex address", addr))
		}
		if _, err := domain.ParseAmount(amount); err != nil {
			errs = append(errs, fmt.Sprintf("funds: balance for %s is not a base-unit integer", addr))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
