package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists Market records keyed by id.
type MarketStore interface {
	// InsertMarket assigns the next id and stores m under it.
	InsertMarket(ctx context.Context, m Market) (uint64, error)
	GetMarket(ctx context.Context, id uint64) (Market, error)
	UpdateMarket(ctx context.Context, m Market) error
	CountMarkets(ctx context.Context) (uint64, error)
	// ListActive returns unresolved markets expiring after now.
	ListActive(ctx context.Context, now time.Time, opts ListOpts) ([]Market, error)
	// ListDue returns at most limit unresolved markets with ids in
	// [fromID, toID] whose expiration is at or before now, ordered by id.
	ListDue(ctx context.Context, fromID, toID uint64, now time.Time, limit int) ([]Market, error)
	// ListResolved returns markets resolved in [since, until), ordered by id.
	ListResolved(ctx context.Context, since, until time.Time, limit int) ([]Market, error)
}

// ParticipationStore records which addresses predicted on which market.
type ParticipationStore interface {
	HasPredicted(ctx context.Context, marketID uint64, addr common.Address) (bool, error)
	// MarkPredicted fails with ErrAlreadyPredicted on a repeat.
	MarkPredicted(ctx context.Context, marketID uint64, addr common.Address) error
}

// PositionLedger issues and retires Position receipts.
type PositionLedger interface {
	// Issue stores p under a fresh id and returns it. p.ID is ignored.
	Issue(ctx context.Context, p Position) (uint64, error)
	// Retire destroys a position. Unknown ids fail with ErrPositionNotFound.
	Retire(ctx context.Context, id uint64) error
	Describe(ctx context.Context, id uint64) (Position, error)
	Transfer(ctx context.Context, id uint64, to common.Address) error
	ListByOwner(ctx context.Context, owner common.Address, opts ListOpts) ([]Position, error)
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Position, error)
}

// OracleRegistry stores per-market oracle registrations.
type OracleRegistry interface {
	// RegisterOracle fails with ErrOracleAlreadyRegistered on a repeat.
	RegisterOracle(ctx context.Context, reg OracleRegistration) error
	GetOracle(ctx context.Context, marketID uint64) (OracleRegistration, error)
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	MarketStore
	ParticipationStore
	PositionLedger
	OracleRegistry
}

// Store is a transactional backend. Reads made directly on the Store see
// committed state only. WithTx commits when fn returns nil and rolls back
// every write made through tx otherwise.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
