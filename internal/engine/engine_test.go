package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/funds"
	"github.com/alanyoungcy/convictionmarket/internal/store/memory"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

// units converts a decimal string to 18-decimal base units.
func units(s string) domain.Amount {
	whole, frac, _ := strings.Cut(s, ".")
	frac += strings.Repeat("0", 18-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		digits = "0"
	}
	return domain.MustAmount(digits)
}

type flakyVault struct {
	*funds.Book
	mu      sync.Mutex
	failPay map[common.Address]bool
}

func (v *flakyVault) Pay(ctx context.Context, to common.Address, amount domain.Amount) error {
	v.mu.Lock()
	fail := v.failPay[to]
	v.mu.Unlock()
	if fail {
		return errors.New("transfer rejected")
	}
	return v.Book.Pay(ctx, to, amount)
}

func (v *flakyVault) setFailPay(addr common.Address, fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failPay[addr] = fail
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	t           *testing.T
	eng         *Engine
	store       *memory.Store
	vault       *flakyVault
	pub         *recordingPublisher
	now         time.Time
	resolver    *domain.Grant
	distributor *domain.Grant
	market      domain.Market
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		t:     t,
		store: memory.New(),
		vault: &flakyVault{Book: funds.NewBook(logger), failPay: map[common.Address]bool{}},
		pub:   &recordingPublisher{},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, a := range []common.Address{alice, bob, carol} {
		if err := f.vault.Credit(a, units("100")); err != nil {
			t.Fatal(err)
		}
	}

	eng, err := New(f.store, f.vault, Settings{
		Owner:          owner,
		Treasury:       treasury,
		FeeBps:         200,
		GlobalMinStake: units("1"),
		MaxStaleness:   time.Hour,
	}, logger, WithClock(func() time.Time { return f.now }), WithPublisher(f.pub))
	if err != nil {
		t.Fatal(err)
	}
	f.eng = eng

	ctx := context.Background()
	if f.resolver, err = eng.Designate(ctx, owner, domain.RoleResolver); err != nil {
		t.Fatal(err)
	}
	if f.distributor, err = eng.Designate(ctx, owner, domain.RoleDistributor); err != nil {
		t.Fatal(err)
	}
	f.market, err = eng.CreateMarket(ctx, owner, MarketSpec{
		Name:        "ETH above 2000",
		AssetSymbol: "eth",
		ExpiresAt:   f.now.Add(time.Hour),
		Feed:        "ETH/USD",
		Threshold:   domain.NewAmount(2000),
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) predict(user common.Address, outcome domain.Outcome, stake, sent string) (Receipt, error) {
	return f.eng.RecordPrediction(context.Background(), PredictionRequest{
		User:          user,
		MarketID:      f.market.ID,
		Outcome:       outcome,
		DeclaredStake: units(stake),
		ValueSent:     units(sent),
	})
}

func (f *fixture) mustPredict(user common.Address, outcome domain.Outcome, stake, sent string) Receipt {
	f.t.Helper()
	r, err := f.predict(user, outcome, stake, sent)
	if err != nil {
		f.t.Fatalf("predict %s: %v", user.Hex(), err)
	}
	return r
}

func (f *fixture) expireAndResolve(outcome domain.Outcome) domain.Amount {
	f.t.Helper()
	f.now = f.market.ExpiresAt.Add(time.Minute)
	pool, err := f.eng.Resolve(context.Background(), f.resolver, f.market.ID, outcome)
	if err != nil {
		f.t.Fatalf("resolve: %v", err)
	}
	return pool
}

func assertAmount(t *testing.T, what string, got, want domain.Amount) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func TestSingleWinnerTakesLosingPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	b := f.mustPredict(bob, domain.OutcomeBearish, "30", "30.6")
	assertAmount(t, "alice fee", a.Fee, units("0.2"))
	assertAmount(t, "bob fee", b.Fee, units("0.6"))
	assertAmount(t, "treasury", f.vault.Balance(treasury), units("0.8"))
	assertAmount(t, "custody", f.vault.Custody(), units("40"))

	pool := f.expireAndResolve(domain.OutcomeBullish)
	assertAmount(t, "pool", pool, units("40"))

	payout, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice)
	if err != nil {
		t.Fatal(err)
	}
	assertAmount(t, "payout", payout, units("40"))
	assertAmount(t, "alice balance", f.vault.Balance(alice), units("129.8"))
	assertAmount(t, "custody", f.vault.Custody(), domain.Amount{})

	if _, err := f.eng.Claim(ctx, f.distributor, b.PositionID, bob); !errors.Is(err, domain.ErrNotWinningPosition) {
		t.Fatalf("losing claim err = %v", err)
	}
}

func TestTwoWinnersSplitLosingPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	c := f.mustPredict(carol, domain.OutcomeBullish, "20", "20.4")
	f.mustPredict(bob, domain.OutcomeBearish, "30", "30.6")
	f.expireAndResolve(domain.OutcomeBullish)

	pa, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice)
	if err != nil {
		t.Fatal(err)
	}
	pc, err := f.eng.Claim(ctx, f.distributor, c.PositionID, carol)
	if err != nil {
		t.Fatal(err)
	}
	assertAmount(t, "alice payout", pa, units("20"))
	assertAmount(t, "carol payout", pc, units("40"))
	assertAmount(t, "custody", f.vault.Custody(), domain.Amount{})
}

func TestNoLosersReturnsStake(t *testing.T) {
	f := newFixture(t)
	a := f.mustPredict(alice, domain.OutcomeBearish, "5", "5.1")
	f.expireAndResolve(domain.OutcomeBearish)

	preview, err := f.eng.PreviewPayout(context.Background(), a.PositionID)
	if err != nil {
		t.Fatal(err)
	}
	assertAmount(t, "preview", preview, units("5"))
}

func TestClaimBeforeResolutionIsConflict(t *testing.T) {
	f := newFixture(t)
	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")

	_, err := f.eng.Claim(context.Background(), f.distributor, a.PositionID, alice)
	if !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("err = %v", err)
	}
	if k := domain.KindOf(err); k != domain.KindConflict {
		t.Fatalf("kind = %s, want conflict", k)
	}
}

func TestDuplicatePredictionIsConflict(t *testing.T) {
	f := newFixture(t)
	f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	before := f.vault.Balance(alice)

	_, err := f.predict(alice, domain.OutcomeBearish, "3", "3.06")
	if !errors.Is(err, domain.ErrAlreadyPredicted) {
		t.Fatalf("err = %v", err)
	}
	if k := domain.KindOf(err); k != domain.KindConflict {
		t.Fatalf("kind = %s, want conflict", k)
	}
	assertAmount(t, "alice balance", f.vault.Balance(alice), before)

	m, err := f.eng.GetMarket(context.Background(), f.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertAmount(t, "bearish total", m.StakeOn(domain.OutcomeBearish), domain.Amount{})
}

func TestRecordPredictionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PredictionRequest
		want error
	}{
		{
			name: "zero user",
			req:  PredictionRequest{MarketID: f.market.ID, DeclaredStake: units("1"), ValueSent: units("1.02")},
			want: domain.ErrInvalidAddress,
		},
		{
			name: "zero stake",
			req:  PredictionRequest{User: alice, MarketID: f.market.ID},
			want: domain.ErrZeroStake,
		},
		{
			name: "invalid outcome",
			req:  PredictionRequest{User: alice, MarketID: f.market.ID, Outcome: 7, DeclaredStake: units("1"), ValueSent: units("1.02")},
			want: domain.ErrInvalidOutcome,
		},
		{
			name: "unknown market",
			req:  PredictionRequest{User: alice, MarketID: 99, DeclaredStake: units("1"), ValueSent: units("1.02")},
			want: domain.ErrMarketNotFound,
		},
		{
			name: "value without fee",
			req:  PredictionRequest{User: alice, MarketID: f.market.ID, DeclaredStake: units("10"), ValueSent: units("10")},
			want: domain.ErrValueMismatch,
		},
		{
			name: "below minimum",
			req:  PredictionRequest{User: alice, MarketID: f.market.ID, DeclaredStake: units("0.5"), ValueSent: units("0.51")},
			want: domain.ErrStakeBelowMinimum,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.eng.RecordPrediction(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	assertAmount(t, "custody", f.vault.Custody(), domain.Amount{})
}

func TestPredictionAfterExpiryRejected(t *testing.T) {
	f := newFixture(t)
	f.now = f.market.ExpiresAt
	if _, err := f.predict(alice, domain.OutcomeBullish, "10", "10.2"); !errors.Is(err, domain.ErrMarketExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestMarketMinStakeOverridesGlobal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.eng.SetMarketMinStake(ctx, owner, f.market.ID, units("20")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.predict(alice, domain.OutcomeBullish, "10", "10.2"); !errors.Is(err, domain.ErrStakeBelowMinimum) {
		t.Fatalf("err = %v", err)
	}
	if err := f.eng.SetMarketMinStake(ctx, owner, f.market.ID, domain.Amount{}); err != nil {
		t.Fatal(err)
	}
	f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
}

func TestFeeTransferFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.vault.setFailPay(treasury, true)

	_, err := f.predict(alice, domain.OutcomeBullish, "10", "10.2")
	if !errors.Is(err, domain.ErrFeeTransferFailed) {
		t.Fatalf("err = %v", err)
	}
	if k := domain.KindOf(err); k != domain.KindExternal {
		t.Fatalf("kind = %s, want external", k)
	}
	assertAmount(t, "alice balance", f.vault.Balance(alice), units("100"))
	assertAmount(t, "custody", f.vault.Custody(), domain.Amount{})

	ctx := context.Background()
	done, err := f.eng.HasPredicted(ctx, f.market.ID, alice)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("participation recorded for aborted prediction")
	}
	if _, err := f.eng.ListPositionsByOwner(ctx, alice, domain.ListOpts{}); err != nil {
		t.Fatal(err)
	}
}

func TestZeroFeeSkipsTreasury(t *testing.T) {
	f := newFixture(t)
	if err := f.eng.SetFeeBps(context.Background(), owner, 0); err != nil {
		t.Fatal(err)
	}
	f.vault.setFailPay(treasury, true)
	r := f.mustPredict(alice, domain.OutcomeBullish, "10", "10")
	assertAmount(t, "fee", r.Fee, domain.Amount{})
}

func TestRewardTransferFailureRollsBackRetirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	f.mustPredict(bob, domain.OutcomeBearish, "30", "30.6")
	f.expireAndResolve(domain.OutcomeBullish)

	f.vault.setFailPay(alice, true)
	_, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice)
	if !errors.Is(err, domain.ErrRewardTransferFailed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.eng.GetPosition(ctx, a.PositionID); err != nil {
		t.Fatalf("position retired despite failed payment: %v", err)
	}

	f.vault.setFailPay(alice, false)
	payout, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice)
	if err != nil {
		t.Fatal(err)
	}
	assertAmount(t, "payout", payout, units("40"))
}

func TestDoubleClaimRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	f.expireAndResolve(domain.OutcomeBullish)

	if _, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Fatalf("second claim err = %v", err)
	}
	assertAmount(t, "alice balance", f.vault.Balance(alice), units("99.8"))
}

func TestClaimRequiresOwner(t *testing.T) {
	f := newFixture(t)
	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	f.expireAndResolve(domain.OutcomeBullish)

	_, err := f.eng.Claim(context.Background(), f.distributor, a.PositionID, bob)
	if !errors.Is(err, domain.ErrNotPositionOwner) {
		t.Fatalf("err = %v", err)
	}
	if k := domain.KindOf(err); k != domain.KindUnauthorized {
		t.Fatalf("kind = %s, want unauthorized", k)
	}
}

func TestResolveIsIrreversible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	f.expireAndResolve(domain.OutcomeBearish)

	if _, err := f.eng.Resolve(ctx, f.resolver, f.market.ID, domain.OutcomeBullish); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("second resolve err = %v", err)
	}
	m, err := f.eng.GetMarket(ctx, f.market.ID)
	if err != nil {
		t.Fatal(err)
	}
	if w, ok := m.Winner(); !ok || w != domain.OutcomeBearish {
		t.Fatalf("winner = %v %v", w, ok)
	}
}

func TestResolveRequiresCurrentGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.resolver
	fresh, err := f.eng.Designate(ctx, owner, domain.RoleResolver)
	if err != nil {
		t.Fatal(err)
	}
	for name, g := range map[string]*domain.Grant{
		"nil":         nil,
		"distributor": f.distributor,
		"revoked":     stale,
		"forged":      domain.NewGrant(domain.RoleResolver),
	} {
		if _, err := f.eng.Resolve(ctx, g, f.market.ID, domain.OutcomeBullish); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s grant err = %v", name, err)
		}
	}
	if _, err := f.eng.Resolve(ctx, fresh, f.market.ID, domain.OutcomeBullish); err != nil {
		t.Fatal(err)
	}
}

func TestDesignateRequiresOwner(t *testing.T) {
	f := newFixture(t)
	if _, err := f.eng.Designate(context.Background(), alice, domain.RoleResolver); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveAtPriceBoundary(t *testing.T) {
	tests := []struct {
		price uint64
		want  domain.Outcome
	}{
		{2500, domain.OutcomeBullish},
		{2000, domain.OutcomeBullish},
		{1999, domain.OutcomeBearish},
	}
	for _, tt := range tests {
		f := newFixture(t)
		got, _, err := f.eng.ResolveAtPrice(context.Background(), f.resolver, f.market.ID, domain.NewAmount(tt.price))
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Fatalf("price %d resolved %s, want %s", tt.price, got, tt.want)
		}
		f.pub.mu.Lock()
		last := f.pub.events[len(f.pub.events)-1]
		f.pub.mu.Unlock()
		if last.Type != domain.EventMarketResolved || last.Detail["price"] != domain.NewAmount(tt.price).String() {
			t.Fatalf("resolved event = %s %v", last.Type, last.Detail)
		}
	}
}

type reentrantVault struct {
	*funds.Book
	eng *Engine
	err error
}

func (v *reentrantVault) Collect(ctx context.Context, from common.Address, amount domain.Amount) error {
	_, v.err = v.eng.RecordPrediction(ctx, PredictionRequest{
		User:          from,
		MarketID:      1,
		Outcome:       domain.OutcomeBearish,
		DeclaredStake: units("1"),
		ValueSent:     units("1.02"),
	})
	return v.Book.Collect(ctx, from, amount)
}

func TestReentrantCallRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	vault := &reentrantVault{Book: funds.NewBook(logger)}
	if err := vault.Credit(alice, units("100")); err != nil {
		t.Fatal(err)
	}
	eng, err := New(memory.New(), vault, Settings{
		Owner:        owner,
		Treasury:     treasury,
		FeeBps:       200,
		MaxStaleness: time.Hour,
	}, logger, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	vault.eng = eng

	ctx := context.Background()
	m, err := eng.CreateMarket(ctx, owner, MarketSpec{Name: "m", ExpiresAt: now.Add(time.Hour), Threshold: domain.NewAmount(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RecordPrediction(ctx, PredictionRequest{
		User:          alice,
		MarketID:      m.ID,
		Outcome:       domain.OutcomeBullish,
		DeclaredStake: units("10"),
		ValueSent:     units("10.2"),
	}); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(vault.err, domain.ErrReentrantCall) {
		t.Fatalf("nested call err = %v", vault.err)
	}
	positions, err := eng.ListPositionsByOwner(ctx, alice, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := MarketSpec{Name: "BTC above 90k", ExpiresAt: f.now.Add(time.Hour), Threshold: domain.NewAmount(90000)}

	tests := []struct {
		name   string
		caller common.Address
		mutate func(*MarketSpec)
		want   error
	}{
		{"not owner", alice, func(*MarketSpec) {}, domain.ErrUnauthorized},
		{"empty name", owner, func(s *MarketSpec) { s.Name = "  " }, domain.ErrEmptyName},
		{"expires now", owner, func(s *MarketSpec) { s.ExpiresAt = f.now }, domain.ErrInvalidExpiration},
		{"zero threshold", owner, func(s *MarketSpec) { s.Threshold = domain.Amount{} }, domain.ErrInvalidThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			if _, err := f.eng.CreateMarket(ctx, tt.caller, spec); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	n, err := f.eng.MarketCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("market count = %d, want 1", n)
	}
}

func TestTransferPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")

	if err := f.eng.TransferPosition(ctx, a.PositionID, bob, carol); !errors.Is(err, domain.ErrNotPositionOwner) {
		t.Fatalf("non-owner transfer err = %v", err)
	}
	if err := f.eng.TransferPosition(ctx, a.PositionID, alice, carol); err != nil {
		t.Fatal(err)
	}
	f.expireAndResolve(domain.OutcomeBullish)

	if _, err := f.eng.Claim(ctx, f.distributor, a.PositionID, alice); !errors.Is(err, domain.ErrNotPositionOwner) {
		t.Fatalf("old owner claim err = %v", err)
	}
	if _, err := f.eng.Claim(ctx, f.distributor, a.PositionID, carol); err != nil {
		t.Fatal(err)
	}
	assertAmount(t, "carol balance", f.vault.Balance(carol), units("110"))
}

func TestRegisterOracleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spec := OracleSpec{MarketID: f.market.ID, Provider: domain.ProviderPyth}

	reg, err := f.eng.RegisterOracle(ctx, owner, spec)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Feed != "ETH/USD" {
		t.Fatalf("feed = %q, want market feed", reg.Feed)
	}
	assertAmount(t, "threshold", reg.Threshold, domain.NewAmount(2000))
	if _, err := f.eng.RegisterOracle(ctx, owner, spec); !errors.Is(err, domain.ErrOracleAlreadyRegistered) {
		t.Fatalf("second registration err = %v", err)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	a := f.mustPredict(alice, domain.OutcomeBullish, "10", "10.2")
	if _, err := f.predict(alice, domain.OutcomeBullish, "10", "10.2"); err == nil {
		t.Fatal("expected duplicate prediction to fail")
	}
	f.expireAndResolve(domain.OutcomeBullish)
	if _, err := f.eng.Claim(context.Background(), f.distributor, a.PositionID, alice); err != nil {
		t.Fatal(err)
	}

	want := []domain.EventType{
		domain.EventMarketCreated,
		domain.EventPredictionRecorded,
		domain.EventMarketResolved,
		domain.EventRewardClaimed,
	}
	got := f.pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}
