package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const positionCols = `id, owner, market_id, outcome, stake, created_at`

func scanPosition(row scanner) (domain.Position, error) {
	var (
		p         domain.Position
		id        int64
		owner     string
		marketID  int64
		outcome   int64
		stake     string
		createdAt int64
	)
	if err := row.Scan(&id, &owner, &marketID, &outcome, &stake, &createdAt); err != nil {
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
	p.CreatedAt = fromUnixNano(createdAt)
	return p, nil
}

func (q *queries) Issue(ctx context.Context, p domain.Position) (uint64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO positions (owner, market_id, outcome, stake, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.Owner.Hex(), int64(p.MarketID), int64(p.Outcome), p.Stake.String(), unixNano(p.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("sqlite: issue position: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: issue position id: %w", err)
	}
	return uint64(id), nil
}

func (q *queries) Retire(ctx context.Context, id uint64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("sqlite: retire position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

func (q *queries) Describe(ctx context.Context, id uint64) (domain.Position, error) {
	p, err := scanPosition(q.db.QueryRowContext(ctx, `SELECT `+positionCols+` FROM positions WHERE id = ?`, int64(id)))
	if err != nil {
		if isNoRows(err) {
			return domain.Position{}, domain.ErrPositionNotFound
		}
		return domain.Position{}, fmt.Errorf("sqlite: describe position %d: %w", id, err)
	}
	return p, nil
}

func (q *queries) Transfer(ctx context.Context, id uint64, to common.Address) error {
	res, err := q.db.ExecContext(ctx, `UPDATE positions SET owner = ? WHERE id = ?`, to.Hex(), int64(id))
	if err != nil {
		return fmt.Errorf("sqlite: transfer position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

func (q *queries) listPositions(ctx context.Context, where string, arg any, opts domain.ListOpts) ([]domain.Position, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`,
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
	ps, err := q.listPositions(ctx, "owner = ?", owner.Hex(), opts)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions of %s: %w", owner.Hex(), err)
	}
	return ps, nil
}

func (q *queries) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error) {
	ps, err := q.listPositions(ctx, "market_id = ?", int64(marketID), opts)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions of market %d: %w", marketID, err)
	}
	return ps, nil
}

func (q *queries) HasPredicted(ctx context.Context, marketID uint64, addr common.Address) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM market_participants WHERE market_id = ? AND address = ?`,
		int64(marketID), addr.Hex()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: check participant: %w", err)
	}
	return n > 0, nil
}

func (q *queries) MarkPredicted(ctx context.Context, marketID uint64, addr common.Address) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO market_participants (market_id, address) VALUES (?, ?)`,
		int64(marketID), addr.Hex())
	if err != nil {
		return fmt.Errorf("sqlite: mark participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadyPredicted
	}
	return nil
}

func (q *queries) RegisterOracle(ctx context.Context, reg domain.OracleRegistration) error {
	var expo any
	if reg.ExpectedExpo != nil {
		expo = int64(*reg.ExpectedExpo)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO oracle_registrations (market_id, provider, feed, threshold, expected_expo, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int64(reg.MarketID), string(reg.Provider), reg.Feed, reg.Threshold.String(), expo, unixNano(reg.RegisteredAt))
	if err != nil {
		return fmt.Errorf("sqlite: register oracle for market %d: %w", reg.MarketID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOracleAlreadyRegistered
	}
	return nil
}

func (q *queries) GetOracle(ctx context.Context, marketID uint64) (domain.OracleRegistration, error) {
	var (
		reg          domain.OracleRegistration
		provider     string
		threshold    string
		expo         sql.NullInt64
		registeredAt int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT provider, feed, threshold, expected_expo, registered_at FROM oracle_registrations WHERE market_id = ?`,
		int64(marketID)).Scan(&provider, &reg.Feed, &threshold, &expo, &registeredAt)
	if err != nil {
		if isNoRows(err) {
			return domain.OracleRegistration{}, domain.ErrOracleNotRegistered
		}
		return domain.OracleRegistration{}, fmt.Errorf("sqlite: get oracle for market %d: %w", marketID, err)
	}
	if reg.Threshold, err = domain.ParseAmount(threshold); err != nil {
		return domain.OracleRegistration{}, fmt.Errorf("sqlite: oracle threshold: %w", err)
	}
	if expo.Valid {
		e := int32(expo.Int64)
		reg.ExpectedExpo = &e
	}
	reg.MarketID = marketID
	reg.Provider = domain.Provider(strings.ToLower(provider))
	reg.RegisteredAt = fromUnixNano(registeredAt)
	return reg, nil
}
