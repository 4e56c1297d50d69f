package funds

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

func TestBookConservesValue(t *testing.T) {
	ctx := context.Background()
	b := NewBook(slog.New(slog.NewTextHandler(io.Discard, nil)))
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	if err := b.Credit(alice, domain.NewAmount(100)); err != nil {
		t.Fatal(err)
	}
	if err := b.Collect(ctx, alice, domain.NewAmount(60)); err != nil {
		t.Fatal(err)
	}
	if err := b.Pay(ctx, bob, domain.NewAmount(25)); err != nil {
		t.Fatal(err)
	}

	if got := b.Balance(alice).String(); got != "40" {
		t.Errorf("alice = %s, want 40", got)
	}
	if got := b.Balance(bob).String(); got != "25" {
		t.Errorf("bob = %s, want 25", got)
	}
	if got := b.Custody().String(); got != "35" {
		t.Errorf("custody = %s, want 35", got)
	}

	if err := b.Pay(ctx, bob, domain.NewAmount(36)); err == nil {
		t.Fatal("paying more than custody should fail")
	}
	if got := b.Custody().String(); got != "35" {
		t.Errorf("failed pay changed custody to %s", got)
	}

	if err := b.ReversePay(ctx, bob, domain.NewAmount(25)); err != nil {
		t.Fatal(err)
	}
	if err := b.ReverseCollect(ctx, alice, domain.NewAmount(60)); err != nil {
		t.Fatal(err)
	}
	if !b.Custody().IsZero() || b.Balance(alice).String() != "100" || !b.Balance(bob).IsZero() {
		t.Fatalf("reversal did not restore balances: custody=%s alice=%s bob=%s",
			b.Custody(), b.Balance(alice), b.Balance(bob))
	}
	if accts := b.Accounts(); len(accts) != 1 || accts[0] != alice {
		t.Fatalf("Accounts = %v", accts)
	}
}
