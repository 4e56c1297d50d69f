// Package oracle turns price observations into market outcomes. The Gateway
// validates what a PriceSource reports (freshness, sign, rounds, exponent)
// before any resolution is committed.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
)

// Engine is the part of the market engine the gateway drives.
type Engine interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	Oracle(ctx context.Context, marketID uint64) (domain.OracleRegistration, error)
	Resolve(ctx context.Context, grant *domain.Grant, marketID uint64, outcome domain.Outcome) (domain.Amount, error)
	ResolveAtPrice(ctx context.Context, grant *domain.Grant, marketID uint64, price domain.Amount) (domain.Outcome, domain.Amount, error)
	Settings() engine.Settings
	Now() time.Time
}

// Resolution is the result of resolving one market.
type Resolution struct {
	MarketID uint64         `json:"market_id"`
	Outcome  domain.Outcome `json:"outcome"`
	Price    *big.Int       `json:"price"`
	Pool     domain.Amount  `json:"pool"`
}

// Gateway resolves markets from their registered price sources.
type Gateway struct {
	engine  Engine
	grant   *domain.Grant
	sources map[domain.Provider]domain.PriceSource
	logger  *slog.Logger

	// maxConfBps bounds conf/price in basis points; zero disables it.
	maxConfBps int64
}

// NewGateway creates a Gateway that resolves through eng using grant.
func NewGateway(eng Engine, grant *domain.Grant, sources map[domain.Provider]domain.PriceSource, logger *slog.Logger) *Gateway {
	if sources == nil {
		sources = make(map[domain.Provider]domain.PriceSource)
	}
	return &Gateway{
		engine:  eng,
		grant:   grant,
		sources: sources,
		logger:  logger.With(slog.String("component", "oracle")),
	}
}

// WithMaxConfidence rejects prices whose confidence interval exceeds bps
// basis points of the price. Sources that report no confidence pass.
func (g *Gateway) WithMaxConfidence(bps int) *Gateway {
	g.maxConfBps = int64(bps)
	return g
}

// ResolveOutcome fetches and validates the latest price for reg and maps it
// to an outcome against reg's threshold.
func (g *Gateway) ResolveOutcome(ctx context.Context, m domain.Market, reg domain.OracleRegistration, maxStaleness time.Duration) (domain.Outcome, *big.Int, error) {
	src, ok := g.sources[reg.Provider]
	if !ok {
		return 0, nil, fmt.Errorf("%w: provider %q not configured", domain.ErrOracleUnavailable, reg.Provider)
	}
	data, err := src.LatestPrice(ctx, reg)
	if err != nil {
		return 0, nil, domain.External(domain.ErrOracleUnavailable, err)
	}

	now := g.engine.Now()
	switch {
	case data.UpdatedAt.IsZero():
		return 0, nil, fmt.Errorf("%w: missing update time", domain.ErrOracleInvalid)
	case data.UpdatedAt.After(now):
		return 0, nil, fmt.Errorf("%w: update time %s is in the future", domain.ErrOracleInvalid, data.UpdatedAt.Format(time.RFC3339))
	case now.Sub(data.UpdatedAt) > maxStaleness:
		return 0, nil, fmt.Errorf("%w: last update %s ago", domain.ErrOracleStale, now.Sub(data.UpdatedAt).Truncate(time.Second))
	case data.Price == nil || data.Price.Sign() <= 0:
		return 0, nil, fmt.Errorf("%w: non-positive price", domain.ErrOracleInvalid)
	case data.RoundID != nil && data.AnsweredInRound != nil && data.AnsweredInRound.Cmp(data.RoundID) < 0:
		return 0, nil, fmt.Errorf("%w: answered in round %s before round %s", domain.ErrOracleStale, data.AnsweredInRound, data.RoundID)
	}
	if g.maxConfBps > 0 && data.Conf != nil {
		limit := new(big.Int).Mul(data.Price, big.NewInt(g.maxConfBps))
		if new(big.Int).Mul(data.Conf, big.NewInt(10_000)).Cmp(limit) > 0 {
			return 0, nil, fmt.Errorf("%w: confidence %s wider than %d bps of price %s", domain.ErrOracleInvalid, data.Conf, g.maxConfBps, data.Price)
		}
	}
	if reg.ExpectedExpo != nil && (!data.HasExpo || data.Expo != *reg.ExpectedExpo) {
		return 0, nil, fmt.Errorf("%w: exponent %d, want %d", domain.ErrOracleInvalid, data.Expo, *reg.ExpectedExpo)
	}

	price, err := domain.AmountFromBig(data.Price)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrOracleInvalid, err)
	}
	threshold := reg.Threshold
	if threshold.IsZero() {
		threshold = m.Threshold
	}
	return domain.OutcomeAt(price, threshold), data.Price, nil
}

// resolvable loads a market that is expired and still open.
func (g *Gateway) resolvable(ctx context.Context, marketID uint64) (domain.Market, error) {
	m, err := g.engine.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if m.Resolved {
		return domain.Market{}, domain.ErrMarketResolved
	}
	if !m.Expired(g.engine.Now()) {
		return domain.Market{}, domain.ErrMarketNotExpired
	}
	return m, nil
}

// ResolveAtPrice resolves an expired market from a price supplied by an
// operator instead of its oracle, for when the feed cannot serve a valid
// observation. by is recorded in the audit log.
func (g *Gateway) ResolveAtPrice(ctx context.Context, marketID uint64, price domain.Amount, by common.Address) (Resolution, error) {
	if price.IsZero() {
		return Resolution{}, fmt.Errorf("%w: price must be positive", domain.ErrInvalidAmount)
	}
	if _, err := g.resolvable(ctx, marketID); err != nil {
		return Resolution{}, err
	}
	outcome, pool, err := g.engine.ResolveAtPrice(ctx, g.grant, marketID, price)
	if err != nil {
		return Resolution{}, err
	}
	g.logger.WarnContext(ctx, "oracle: market resolved by price override",
		slog.Uint64("market_id", marketID),
		slog.String("outcome", outcome.String()),
		slog.String("price", price.String()),
		slog.String("by", by.Hex()),
	)
	return Resolution{MarketID: marketID, Outcome: outcome, Price: price.Big(), Pool: pool}, nil
}

// ResolveMarket resolves an expired market from its registered oracle.
func (g *Gateway) ResolveMarket(ctx context.Context, marketID uint64) (Resolution, error) {
	m, err := g.resolvable(ctx, marketID)
	if err != nil {
		return Resolution{}, err
	}
	reg, err := g.engine.Oracle(ctx, marketID)
	if err != nil {
		return Resolution{}, err
	}

	outcome, price, err := g.ResolveOutcome(ctx, m, reg, g.engine.Settings().MaxStaleness)
	if err != nil {
		g.logger.WarnContext(ctx, "oracle: price rejected",
			slog.Uint64("market_id", marketID),
			slog.String("provider", string(reg.Provider)),
			slog.String("feed", reg.Feed),
			slog.String("error", err.Error()),
		)
		return Resolution{}, err
	}

	pool, err := g.engine.Resolve(ctx, g.grant, marketID, outcome)
	if err != nil {
		return Resolution{}, err
	}
	g.logger.InfoContext(ctx, "oracle: market resolved",
		slog.Uint64("market_id", marketID),
		slog.String("outcome", outcome.String()),
		slog.String("price", price.String()),
	)
	return Resolution{MarketID: marketID, Outcome: outcome, Price: price, Pool: pool}, nil
}
