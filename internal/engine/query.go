package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// GetMarket returns the committed state of a market.
func (e *Engine) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	return e.store.GetMarket(ctx, id)
}

// HasPredicted reports whether addr already predicted on marketID.
func (e *Engine) HasPredicted(ctx context.Context, marketID uint64, addr common.Address) (bool, error) {
	if _, err := e.store.GetMarket(ctx, marketID); err != nil {
		return false, err
	}
	return e.store.HasPredicted(ctx, marketID, addr)
}

// MarketCount returns the number of markets ever created.
func (e *Engine) MarketCount(ctx context.Context) (uint64, error) {
	return e.store.CountMarkets(ctx)
}

// ActiveMarkets lists markets still accepting predictions.
func (e *Engine) ActiveMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return e.store.ListActive(ctx, e.now(), opts)
}

// DueMarkets lists at most limit expired, unresolved markets with ids in
// [fromID, toID].
func (e *Engine) DueMarkets(ctx context.Context, fromID, toID uint64, limit int) ([]domain.Market, error) {
	return e.store.ListDue(ctx, fromID, toID, e.now(), limit)
}

// ResolvedMarkets lists markets resolved in [since, until).
func (e *Engine) ResolvedMarkets(ctx context.Context, since, until time.Time, limit int) ([]domain.Market, error) {
	return e.store.ListResolved(ctx, since, until, limit)
}

// IsExpired reports whether a market has reached its expiration.
func (e *Engine) IsExpired(ctx context.Context, id uint64) (bool, error) {
	m, err := e.store.GetMarket(ctx, id)
	if err != nil {
		return false, err
	}
	return m.Expired(e.now()), nil
}

// GetPosition describes a live position.
func (e *Engine) GetPosition(ctx context.Context, id uint64) (domain.Position, error) {
	return e.store.Describe(ctx, id)
}

// ListPositionsByOwner lists live positions held by owner.
func (e *Engine) ListPositionsByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	return e.store.ListByOwner(ctx, owner, opts)
}

// ListPositionsByMarket lists live positions on a market.
func (e *Engine) ListPositionsByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error) {
	if _, err := e.store.GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	return e.store.ListByMarket(ctx, marketID, opts)
}

// Oracle returns the oracle registration of a market.
func (e *Engine) Oracle(ctx context.Context, marketID uint64) (domain.OracleRegistration, error) {
	return e.store.GetOracle(ctx, marketID)
}
