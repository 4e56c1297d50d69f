package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// querier is the subset of pgxpool.Pool and pgx.Tx the queries need.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements domain.Tx over a querier. Inside a transaction market
// reads take a row lock.
type queries struct {
	q         querier
	forUpdate bool
}

// Store is a PostgreSQL-backed domain.Store.
type Store struct {
	queries
	client *Client
}

// NewStore creates a Store on top of c. Migrations must already be applied.
func NewStore(c *Client) *Store {
	return &Store{queries: queries{q: c.pool}, client: c}
}

// WithTx runs fn inside a database transaction, committing when fn returns
// nil and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.client.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&queries{q: tx, forUpdate: true})
	})
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func (q *queries) lockClause() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func toID(id uint64) (int64, error) {
	if id > 1<<63-1 {
		return 0, fmt.Errorf("postgres: id %d out of range", id)
	}
	return int64(id), nil
}

func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*queries)(nil)
)
