package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Resolve fixes the winning outcome of a market and returns its total pool.
// Only the holder of the current resolver grant may resolve, and a market
// resolves at most once. No funds move.
func (e *Engine) Resolve(ctx context.Context, grant *domain.Grant, marketID uint64, outcome domain.Outcome) (domain.Amount, error) {
	if err := e.requireGrant(grant, domain.RoleResolver); err != nil {
		return domain.Amount{}, err
	}
	return e.resolve(ctx, marketID, outcome, nil)
}

// resolve commits the outcome; detail is merged into the emitted event.
func (e *Engine) resolve(ctx context.Context, marketID uint64, outcome domain.Outcome, detail map[string]string) (domain.Amount, error) {
	if !outcome.Valid() {
		return domain.Amount{}, domain.ErrInvalidOutcome
	}

	var pool domain.Amount
	err := e.mutate(ctx, "resolve", func(ctx context.Context, s *scope) error {
		m, err := s.tx.GetMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Resolved {
			return domain.ErrMarketResolved
		}
		pool, err = m.TotalPool()
		if err != nil {
			return fmt.Errorf("%w: pool overflow", domain.ErrInconsistentState)
		}
		at := s.now
		m.Resolved = true
		m.WinningOutcome = outcome
		m.ResolvedAt = &at
		if err := s.tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("engine: update market %d: %w", m.ID, err)
		}
		ev := domain.Event{
			Type:     domain.EventMarketResolved,
			MarketID: m.ID,
			Outcome:  outcomePtr(outcome),
			Amount:   amountPtr(pool),
			Detail: map[string]string{
				"bearish_total": m.TotalStake[domain.OutcomeBearish].String(),
				"bullish_total": m.TotalStake[domain.OutcomeBullish].String(),
			},
		}
		for k, v := range detail {
			ev.Detail[k] = v
		}
		s.emit(ev)
		return nil
	})
	if err != nil {
		return domain.Amount{}, err
	}

	e.metrics.MarketResolved(outcome)
	e.logger.InfoContext(ctx, "engine: market resolved",
		slog.Uint64("market_id", marketID),
		slog.String("outcome", outcome.String()),
		slog.String("pool", pool.String()),
	)
	return pool, nil
}

// ResolveAtPrice resolves a market from a reported price using the
// market's threshold: a price at or above it resolves Bullish. The price is
// recorded on the market_resolved event.
func (e *Engine) ResolveAtPrice(ctx context.Context, grant *domain.Grant, marketID uint64, price domain.Amount) (domain.Outcome, domain.Amount, error) {
	if err := e.requireGrant(grant, domain.RoleResolver); err != nil {
		return 0, domain.Amount{}, err
	}
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return 0, domain.Amount{}, err
	}
	outcome := domain.OutcomeAt(price, m.Threshold)
	pool, err := e.resolve(ctx, marketID, outcome, map[string]string{"price": price.String()})
	if err != nil {
		return 0, domain.Amount{}, err
	}
	return outcome, pool, nil
}
