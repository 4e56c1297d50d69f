package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

func (q *queries) RegisterOracle(ctx context.Context, reg domain.OracleRegistration) error {
	key, err := toID(reg.MarketID)
	if err != nil {
		return domain.ErrMarketNotFound
	}
	tag, err := q.q.Exec(ctx,
		`INSERT INTO oracle_registrations (market_id, provider, feed, threshold, expected_expo, registered_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
		 ON CONFLICT (market_id) DO NOTHING`,
		key, string(reg.Provider), reg.Feed, reg.Threshold.String(), reg.ExpectedExpo, reg.RegisteredAt)
	if err != nil {
		return fmt.Errorf("postgres: register oracle for market %d: %w", reg.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOracleAlreadyRegistered
	}
	return nil
}

func (q *queries) GetOracle(ctx context.Context, marketID uint64) (domain.OracleRegistration, error) {
	key, err := toID(marketID)
	if err != nil {
		return domain.OracleRegistration{}, domain.ErrOracleNotRegistered
	}
	var (
		reg       domain.OracleRegistration
		provider  string
		threshold string
	)
	err = q.q.QueryRow(ctx,
		`SELECT provider, feed, threshold::text, expected_expo, registered_at
		 FROM oracle_registrations WHERE market_id = $1`, key,
	).Scan(&provider, &reg.Feed, &threshold, &reg.ExpectedExpo, &reg.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OracleRegistration{}, domain.ErrOracleNotRegistered
		}
		return domain.OracleRegistration{}, fmt.Errorf("postgres: get oracle for market %d: %w", marketID, err)
	}
	if reg.Threshold, err = domain.ParseAmount(threshold); err != nil {
		return domain.OracleRegistration{}, fmt.Errorf("postgres: oracle threshold for market %d: %w", marketID, err)
	}
	reg.MarketID = marketID
	reg.Provider = domain.Provider(provider)
	return reg, nil
}
