package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/config"
	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Engine.Owner = owner.Hex()
	cfg.Engine.Treasury = "0x00000000000000000000000000000000000000c3"
	cfg.Funds.Balances = map[string]string{alice.Hex(): "5000"}
	return &cfg
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestWireMemoryBackend(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), memoryConfig(), discard())
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Redis != nil || deps.KafkaEvents != nil || deps.Archiver != nil {
		t.Fatal("optional backends wired without configuration")
	}
	if got := deps.Vault.Balance(alice); !got.Equal(domain.NewAmount(5000)) {
		t.Errorf("seeded balance = %s, want 5000", got)
	}
	if got := deps.Engine.Settings().FeeBps; got != 100 {
		t.Errorf("fee bps = %d, want 100", got)
	}
	if len(deps.Checks) != 0 {
		t.Errorf("checks = %v, want none", deps.Checks)
	}

	// Creating a market must reach the expiry timers through the fan-out.
	_, err = deps.Engine.CreateMarket(context.Background(), owner, engine.MarketSpec{
		Name:      "ETH above 2000",
		ExpiresAt: time.Now().Add(time.Hour),
		Threshold: domain.NewAmount(2000),
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if n := deps.Expiry.Pending(); n != 1 {
		t.Errorf("pending expiry timers = %d, want 1", n)
	}
}

func TestWireRejectsBadBalance(t *testing.T) {
	cfg := memoryConfig()
	cfg.Funds.Balances = map[string]string{alice.Hex(): "lots"}
	if _, _, err := Wire(context.Background(), cfg, discard()); err == nil {
		t.Fatal("Wire accepted a non-numeric balance")
	}
}

func TestNeedsArchive(t *testing.T) {
	tests := []struct {
		mode    string
		enabled bool
		want    bool
	}{
		{"archive", false, true},
		{"full", true, true},
		{"full", false, false},
		{"server", true, false},
	}
	for _, tt := range tests {
		cfg := config.Defaults()
		cfg.Mode = tt.mode
		cfg.Archive.Enabled = tt.enabled
		if got := needsArchive(&cfg); got != tt.want {
			t.Errorf("needsArchive(%s, enabled=%v) = %v, want %v", tt.mode, tt.enabled, got, tt.want)
		}
	}
}
