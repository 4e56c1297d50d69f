// Package rewards computes pari-mutuel payouts and exposes the claim surface
// used by position holders.
package rewards

import (
	"fmt"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Payout returns what a winning stake receives from a resolved market:
//
//	stake + floor(stake * losingTotal / winningTotal)
//
// The product is formed before the division, so across all winners the sum
// of payouts never exceeds winningTotal + losingTotal; any remainder stays
// in custody.
func Payout(stake, winningTotal, losingTotal domain.Amount) (domain.Amount, error) {
	if winningTotal.IsZero() {
		return domain.Amount{}, fmt.Errorf("%w: winning side has zero stake", domain.ErrInconsistentState)
	}
	if stake.Cmp(winningTotal) > 0 {
		return domain.Amount{}, fmt.Errorf("%w: stake %s exceeds winning total %s",
			domain.ErrInconsistentState, stake, winningTotal)
	}
	if losingTotal.IsZero() {
		return stake, nil
	}
	share, err := stake.MulDiv(losingTotal, winningTotal)
	if err != nil {
		return domain.Amount{}, err
	}
	return stake.Add(share)
}
