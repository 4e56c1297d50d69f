package rewards

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

func TestPayout(t *testing.T) {
	tests := []struct {
		name             string
		stake, win, lose uint64
		want             uint64
	}{
		{"single winner takes losing pool", 10, 10, 30, 40},
		{"smaller of two winners", 10, 30, 30, 20},
		{"larger of two winners", 20, 30, 30, 40},
		{"no losers returns stake", 7, 7, 0, 7},
		{"floors remainder", 1, 3, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payout(domain.NewAmount(tt.stake), domain.NewAmount(tt.win), domain.NewAmount(tt.lose))
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != domain.NewAmount(tt.want).String() {
				t.Fatalf("Payout = %s, want %d", got, tt.want)
			}
		})
	}
}

func TestPayoutRejectsInconsistentTotals(t *testing.T) {
	if _, err := Payout(domain.NewAmount(1), domain.Amount{}, domain.NewAmount(5)); !errors.Is(err, domain.ErrInconsistentState) {
		t.Fatalf("zero winning total err = %v", err)
	}
	if _, err := Payout(domain.NewAmount(9), domain.NewAmount(5), domain.NewAmount(5)); !errors.Is(err, domain.ErrInconsistentState) {
		t.Fatalf("stake above winning total err = %v", err)
	}
}

func TestPayoutConservation(t *testing.T) {
	// Three winners with awkward ratios; the sum must never exceed the pool.
	stakes := []uint64{3, 7, 11}
	win := domain.NewAmount(21)
	lose := domain.NewAmount(10)
	pool, _ := win.Add(lose)

	var total domain.Amount
	for _, s := range stakes {
		p, err := Payout(domain.NewAmount(s), win, lose)
		if err != nil {
			t.Fatal(err)
		}
		total, _ = total.Add(p)
	}
	if total.Cmp(pool) > 0 {
		t.Fatalf("payouts %s exceed pool %s", total, pool)
	}
	residual, _ := pool.Sub(total)
	if u, _ := residual.Uint64(); u >= uint64(len(stakes)) {
		t.Fatalf("residual %s should be below the number of winners", residual)
	}
}
