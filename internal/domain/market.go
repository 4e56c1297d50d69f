package domain

import "time"

// Market is a binary prediction on whether an asset's price will be at or
// above Threshold when the market expires.
//
// TotalStake only grows while the market is open and is frozen once Resolved
// is set. WinningOutcome is meaningless until then; read it through Winner.
type Market struct {
	ID             uint64
	Name           string
	AssetSymbol    string
	ExpiresAt      time.Time
	Feed           string
	Threshold      Amount
	Resolved       bool
	WinningOutcome Outcome
	TotalStake     [2]Amount
	MinStake       Amount
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Expired reports whether now is at or past the expiration time.
func (m Market) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Active reports whether the market still accepts predictions.
func (m Market) Active(now time.Time) bool {
	return !m.Resolved && !m.Expired(now)
}

// Due reports whether the market is expired and still awaiting resolution.
func (m Market) Due(now time.Time) bool {
	return !m.Resolved && m.Expired(now)
}

// Winner returns the winning outcome and true once the market is resolved.
func (m Market) Winner() (Outcome, bool) {
	if !m.Resolved {
		return 0, false
	}
	return m.WinningOutcome, true
}

// StakeOn returns the total stake placed on o.
func (m Market) StakeOn(o Outcome) Amount {
	if !o.Valid() {
		return Amount{}
	}
	return m.TotalStake[o]
}

// TotalPool returns the sum of both sides.
func (m Market) TotalPool() (Amount, error) {
	return m.TotalStake[OutcomeBearish].Add(m.TotalStake[OutcomeBullish])
}

// OutcomeAt maps a reported price to an outcome. A price equal to the
// threshold resolves Bullish.
func OutcomeAt(price, threshold Amount) Outcome {
	if price.Cmp(threshold) >= 0 {
		return OutcomeBullish
	}
	return OutcomeBearish
}
