package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
	"github.com/alanyoungcy/convictionmarket/internal/funds"
	"github.com/alanyoungcy/convictionmarket/internal/store/memory"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type stubSource struct {
	data domain.PriceData
	err  error
}

func (s *stubSource) LatestPrice(context.Context, domain.OracleRegistration) (domain.PriceData, error) {
	return s.data, s.err
}

type harness struct {
	eng    *engine.Engine
	gw     *Gateway
	src    *stubSource
	now    time.Time
	market domain.Market
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		src: &stubSource{},
		now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	eng, err := engine.New(memory.New(), funds.NewBook(logger), engine.Settings{
		Owner:        owner,
		Treasury:     common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		FeeBps:       200,
		MaxStaleness: time.Hour,
	}, logger, engine.WithClock(func() time.Time { return h.now }))
	if err != nil {
		t.Fatal(err)
	}
	h.eng = eng

	ctx := context.Background()
	grant, err := eng.Designate(ctx, owner, domain.RoleResolver)
	if err != nil {
		t.Fatal(err)
	}
	h.market, err = eng.CreateMarket(ctx, owner, engine.MarketSpec{
		Name:      "ETH above 2000",
		ExpiresAt: h.now.Add(time.Hour),
		Feed:      "eth-usd",
		Threshold: domain.NewAmount(2000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RegisterOracle(ctx, owner, engine.OracleSpec{MarketID: h.market.ID, Provider: domain.ProviderPyth}); err != nil {
		t.Fatal(err)
	}
	h.gw = NewGateway(eng, grant, map[domain.Provider]domain.PriceSource{domain.ProviderPyth: h.src}, logger)
	return h
}

func (h *harness) expire() {
	h.now = h.market.ExpiresAt.Add(time.Minute)
}

func TestResolveMarketFromFreshPrice(t *testing.T) {
	h := newHarness(t)
	h.expire()
	h.src.data = domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now.Add(-time.Minute)}

	res, err := h.gw.ResolveMarket(context.Background(), h.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeBullish {
		t.Fatalf("outcome = %s, want bullish", res.Outcome)
	}
	m, err := h.eng.GetMarket(context.Background(), h.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Resolved {
		t.Fatal("market not resolved")
	}

	if _, err := h.gw.ResolveMarket(context.Background(), h.market.ID); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("second resolve err = %v", err)
	}
}

func TestResolveMarketBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	h.src.data = domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now}
	if _, err := h.gw.ResolveMarket(context.Background(), h.market.ID); !errors.Is(err, domain.ErrMarketNotExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveOutcomeValidation(t *testing.T) {
	h := newHarness(t)
	h.expire()
	ctx := context.Background()
	reg, err := h.eng.Oracle(ctx, h.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	expo := int32(-8)

	tests := []struct {
		name string
		data domain.PriceData
		err  error
		reg  func(*domain.OracleRegistration)
		want error
	}{
		{
			name: "stale",
			data: domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now.Add(-2 * time.Hour)},
			want: domain.ErrOracleStale,
		},
		{
			name: "future timestamp",
			data: domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now.Add(time.Minute)},
			want: domain.ErrOracleInvalid,
		},
		{
			name: "missing timestamp",
			data: domain.PriceData{Price: big.NewInt(2500)},
			want: domain.ErrOracleInvalid,
		},
		{
			name: "zero price",
			data: domain.PriceData{Price: big.NewInt(0), UpdatedAt: h.now},
			want: domain.ErrOracleInvalid,
		},
		{
			name: "negative price",
			data: domain.PriceData{Price: big.NewInt(-5), UpdatedAt: h.now},
			want: domain.ErrOracleInvalid,
		},
		{
			name: "answered in earlier round",
			data: domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now, RoundID: big.NewInt(10), AnsweredInRound: big.NewInt(9)},
			want: domain.ErrOracleStale,
		},
		{
			name: "exponent mismatch",
			data: domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now, Expo: -6, HasExpo: true},
			reg:  func(r *domain.OracleRegistration) { r.ExpectedExpo = &expo },
			want: domain.ErrOracleInvalid,
		},
		{
			name: "exponent missing",
			data: domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now},
			reg:  func(r *domain.OracleRegistration) { r.ExpectedExpo = &expo },
			want: domain.ErrOracleInvalid,
		},
		{
			name: "unconfigured provider",
			reg:  func(r *domain.OracleRegistration) { r.Provider = domain.ProviderChainlink },
			want: domain.ErrOracleUnavailable,
		},
		{
			name: "provider failure",
			err:  errors.New("connection refused"),
			want: domain.ErrOracleUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.src.data, h.src.err = tt.data, tt.err
			r := reg
			if tt.reg != nil {
				tt.reg(&r)
			}
			_, _, err := h.gw.ResolveOutcome(ctx, h.market, r, time.Hour)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if k := domain.KindOf(err); k != domain.KindExternal {
				t.Fatalf("kind = %s, want external", k)
			}
		})
	}

	m, err := h.eng.GetMarket(ctx, h.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	if m.Resolved {
		t.Fatal("rejected prices must not resolve the market")
	}
}

func TestResolveOutcomeThresholdBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg, err := h.eng.Oracle(ctx, h.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		price int64
		want  domain.Outcome
	}{
		{2001, domain.OutcomeBullish},
		{2000, domain.OutcomeBullish},
		{1999, domain.OutcomeBearish},
	}
	for _, tt := range tests {
		h.src.data = domain.PriceData{Price: big.NewInt(tt.price), UpdatedAt: h.now}
		got, _, err := h.gw.ResolveOutcome(ctx, h.market, reg, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Fatalf("price %d = %s, want %s", tt.price, got, tt.want)
		}
	}
}

func TestResolveOutcomeConfidenceBound(t *testing.T) {
	h := newHarness(t)
	h.expire()
	h.gw.WithMaxConfidence(200)
	ctx := context.Background()
	reg, err := h.eng.Oracle(ctx, h.market.ID)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		conf    *big.Int
		wantErr bool
	}{
		{"no confidence reported", nil, false},
		{"narrow", big.NewInt(10), false},
		{"at bound", big.NewInt(50), false},
		{"too wide", big.NewInt(51), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.src.data = domain.PriceData{Price: big.NewInt(2500), Conf: tt.conf, UpdatedAt: h.now}
			_, _, err := h.gw.ResolveOutcome(ctx, h.market, reg, time.Hour)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrOracleInvalid) {
					t.Fatalf("err = %v, want ErrOracleInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
		})
	}

	h.gw.WithMaxConfidence(0)
	h.src.data = domain.PriceData{Price: big.NewInt(2500), Conf: big.NewInt(2500), UpdatedAt: h.now}
	if _, _, err := h.gw.ResolveOutcome(ctx, h.market, reg, time.Hour); err != nil {
		t.Fatalf("disabled bound: err = %v", err)
	}
}

func TestResolveAtPriceOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	operator := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	if _, err := h.gw.ResolveAtPrice(ctx, h.market.ID, domain.NewAmount(2500), operator); !errors.Is(err, domain.ErrMarketNotExpired) {
		t.Fatalf("before expiry: err = %v", err)
	}
	h.expire()
	if _, err := h.gw.ResolveAtPrice(ctx, h.market.ID, domain.Amount{}, operator); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero price: err = %v", err)
	}

	// The oracle is stale; the override does not consult it.
	h.src.data = domain.PriceData{Price: big.NewInt(2500), UpdatedAt: h.now.Add(-24 * time.Hour)}
	res, err := h.gw.ResolveAtPrice(ctx, h.market.ID, domain.NewAmount(1999), operator)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != domain.OutcomeBearish || res.Price.Int64() != 1999 {
		t.Fatalf("resolution = %+v", res)
	}
	if _, err := h.gw.ResolveAtPrice(ctx, h.market.ID, domain.NewAmount(2500), operator); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("second override: err = %v", err)
	}
}
