// Package handler implements the HTTP endpoints of the settlement API.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
	"github.com/alanyoungcy/convictionmarket/internal/oracle"
)

// Engine is the engine surface the handlers drive. It is declared here so
// tests can substitute a fake.
type Engine interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	MarketCount(ctx context.Context) (uint64, error)
	ActiveMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	IsExpired(ctx context.Context, id uint64) (bool, error)
	HasPredicted(ctx context.Context, marketID uint64, addr common.Address) (bool, error)
	GetPosition(ctx context.Context, id uint64) (domain.Position, error)
	ListPositionsByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Position, error)
	ListPositionsByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error)
	Oracle(ctx context.Context, marketID uint64) (domain.OracleRegistration, error)

	QuoteFee(stake domain.Amount) (fee, total domain.Amount, err error)
	RecordPrediction(ctx context.Context, req engine.PredictionRequest) (engine.Receipt, error)
	TransferPosition(ctx context.Context, positionID uint64, from, to common.Address) error

	CreateMarket(ctx context.Context, caller common.Address, spec engine.MarketSpec) (domain.Market, error)
	RegisterOracle(ctx context.Context, caller common.Address, spec engine.OracleSpec) (domain.OracleRegistration, error)
	SetMarketMinStake(ctx context.Context, caller common.Address, marketID uint64, minStake domain.Amount) error
	SetFeeBps(ctx context.Context, caller common.Address, bps uint32) error
	SetGlobalMinStake(ctx context.Context, caller common.Address, minStake domain.Amount) error
	SetMaxStaleness(ctx context.Context, caller common.Address, d time.Duration) error
	SetTreasury(ctx context.Context, caller common.Address, treasury common.Address) error
	Settings() engine.Settings
	Now() time.Time
}

// Claimer pays winning positions.
type Claimer interface {
	Claim(ctx context.Context, claimant common.Address, positionID uint64) (domain.Amount, error)
	Preview(ctx context.Context, positionID uint64) (domain.Amount, error)
}

// Resolver resolves an expired market from its oracle, or from a price an
// operator supplies.
type Resolver interface {
	ResolveMarket(ctx context.Context, marketID uint64) (oracle.Resolution, error)
	ResolveAtPrice(ctx context.Context, marketID uint64, price domain.Amount, by common.Address) (oracle.Resolution, error)
}

// Deps bundles what the handlers need. Cache may be nil.
type Deps struct {
	Engine   Engine
	Claimer  Claimer
	Resolver Resolver
	Cache    domain.MarketCache
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	return d.Logger.With(slog.String("component", "http"))
}
