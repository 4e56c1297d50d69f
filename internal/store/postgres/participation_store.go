package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

func (q *queries) HasPredicted(ctx context.Context, marketID uint64, addr common.Address) (bool, error) {
	key, err := toID(marketID)
	if err != nil {
		return false, nil
	}
	var ok bool
	err = q.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM market_participants WHERE market_id = $1 AND address = $2)`,
		key, addr.Hex(),
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: check participant %s on market %d: %w", addr.Hex(), marketID, err)
	}
	return ok, nil
}

func (q *queries) MarkPredicted(ctx context.Context, marketID uint64, addr common.Address) error {
	key, err := toID(marketID)
	if err != nil {
		return domain.ErrMarketNotFound
	}
	tag, err := q.q.Exec(ctx,
		`INSERT INTO market_participants (market_id, address) VALUES ($1, $2)
		 ON CONFLICT (market_id, address) DO NOTHING`,
		key, addr.Hex())
	if err != nil {
		return fmt.Errorf("postgres: mark participant %s on market %d: %w", addr.Hex(), marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyPredicted
	}
	return nil
}
