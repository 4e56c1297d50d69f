package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const positionCols = `id, owner, market_id, outcome, stake::text, created_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p        domain.Position
		id       int64
		marketID int64
		owner    string
		outcome  int16
		stake    string
	)
	if err := row.Scan(&id, &owner, &marketID, &outcome, &stake, &p.CreatedAt); err != nil {
		return domain.Position{}, err
	}
	amt, err := domain.ParseAmount(stake)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position %d: %w", id, err)
	}
	p.ID = uint64(id)
	p.Owner = common.HexToAddress(owner)
	p.MarketID = uint64(marketID)
	p.Outcome = domain.Outcome(outcome)
	p.Stake = amt
	return p, nil
}

func (q *queries) Issue(ctx context.Context, p domain.Position) (uint64, error) {
	marketID, err := toID(p.MarketID)
	if err != nil {
		return 0, domain.ErrMarketNotFound
	}
	var id int64
	err = q.q.QueryRow(ctx,
		`INSERT INTO positions (owner, market_id, outcome, stake, created_at)
		 VALUES ($1, $2, $3, $4::text::numeric, $5)
		 RETURNING id`,
		p.Owner.Hex(), marketID, int16(p.Outcome), p.Stake.String(), p.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: issue position: %w", err)
	}
	return uint64(id), nil
}

func (q *queries) Retire(ctx context.Context, id uint64) error {
	key, err := toID(id)
	if err != nil {
		return domain.ErrPositionNotFound
	}
	tag, err := q.q.Exec(ctx, `DELETE FROM positions WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres: retire position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

func (q *queries) Describe(ctx context.Context, id uint64) (domain.Position, error) {
	key, err := toID(id)
	if err != nil {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	p, err := scanPosition(q.q.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`+q.lockClause(), key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrPositionNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: describe position %d: %w", id, err)
	}
	return p, nil
}

func (q *queries) Transfer(ctx context.Context, id uint64, to common.Address) error {
	key, err := toID(id)
	if err != nil {
		return domain.ErrPositionNotFound
	}
	tag, err := q.q.Exec(ctx, `UPDATE positions SET owner = $2 WHERE id = $1`, key, to.Hex())
	if err != nil {
		return fmt.Errorf("postgres: transfer position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

func (q *queries) listPositions(ctx context.Context, where string, arg any, opts domain.ListOpts) ([]domain.Position, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE `+where+` ORDER BY id LIMIT $2 OFFSET $3`,
		arg, limitOrAll(opts.Limit), opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	ps, err := q.listPositions(ctx, "owner = $1", owner.Hex(), opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions of %s: %w", owner.Hex(), err)
	}
	return ps, nil
}

func (q *queries) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error) {
	key, err := toID(marketID)
	if err != nil {
		return nil, nil
	}
	ps, err := q.listPositions(ctx, "market_id = $1", key, opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions of market %d: %w", marketID, err)
	}
	return ps, nil
}
