package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	ownerHex    = "0x00000000000000000000000000000000000000a1"
	treasuryHex = "0x00000000000000000000000000000000000000f1"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Engine.Owner = ownerHex
	cfg.Engine.Treasury = treasuryHex
	return cfg
}

func TestDefaultsNeedOnlyAddresses(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("defaults without owner validated")
	}
	if !strings.Contains(err.Error(), "engine: owner") || !strings.Contains(err.Error(), "engine: treasury") {
		t.Fatalf("error = %v", err)
	}

	cfg = validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conviction.toml")
	body := `
mode = "server"

[engine]
owner = "` + ownerHex + `"
treasury = "` + treasuryHex + `"
fee_bps = 250
max_staleness = "15m"

[store]
backend = "sqlite"

[scheduler]
interval = "10s"

[funds.balances]
"0x0000000000000000000000000000000000000a11" = "5000"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONVICTION_SERVER_PORT", "9090")
	t.Setenv("CONVICTION_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CONVICTION_ENGINE_FEE_BPS", "300")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Mode != "server" || cfg.Store.Backend != "sqlite" {
		t.Fatalf("mode/backend = %s/%s", cfg.Mode, cfg.Store.Backend)
	}
	if cfg.Engine.FeeBps != 300 {
		t.Fatalf("fee_bps = %d, want env override 300", cfg.Engine.FeeBps)
	}
	if cfg.Engine.MaxStaleness.Duration != 15*time.Minute || cfg.Scheduler.Interval.Duration != 10*time.Second {
		t.Fatalf("durations = %v %v", cfg.Engine.MaxStaleness, cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.BatchCap != 50 {
		t.Fatalf("batch_cap default lost: %d", cfg.Scheduler.BatchCap)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Funds.Balances["0x0000000000000000000000000000000000000a11"] != "5000" {
		t.Fatalf("balances = %v", cfg.Funds.Balances)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"fee", func(c *Config) { c.Engine.FeeBps = 10_001 }, "fee_bps"},
		{"min stake", func(c *Config) { c.Engine.MinStake = "1.5" }, "min_stake"},
		{"backend", func(c *Config) { c.Store.Backend = "mysql" }, "unknown backend"},
		{"scheduler on memory", func(c *Config) { c.Mode = "scheduler" }, "shared backend"},
		{"ingest without kafka", func(c *Config) { c.Mode = "ingest"; c.Redis.Enabled = true }, "ingest mode requires kafka"},
		{"archive bucket", func(c *Config) { c.Archive.Enabled = true; c.S3.Bucket = "" }, "s3: bucket"},
		{"funds", func(c *Config) { c.Funds.Balances = map[string]string{"nobody": "1"} }, "funds"},
		{"postgres pool", func(c *Config) { c.Store.Backend = "postgres"; c.Postgres.PoolMaxConns = 0 }, "pool_max_conns"},
		{"confidence bound", func(c *Config) { c.Oracle.MaxConfBps = 20_000 }, "max_conf_bps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Operator.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.Events = []string{"market_resolved"}

	out := RedactedConfig(&cfg)
	if out.Operator.PrivateKey != redacted || out.Postgres.Password != redacted {
		t.Fatalf("secrets not redacted: %+v", out.Operator)
	}
	if out.Redis.Password != "" {
		t.Fatal("empty secret replaced")
	}
	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] != "market_resolved" {
		t.Fatal("redacted copy shares slices with the original")
	}
	if cfg.Operator.PrivateKey != "deadbeef" {
		t.Fatal("original mutated")
	}
}
