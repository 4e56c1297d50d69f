package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const marketCols = `id, name, asset_symbol, expires_at, feed, threshold, resolved,
	winning_outcome, total_bearish, total_bullish, min_stake, created_at, resolved_at`

func scanMarket(row scanner) (domain.Market, error) {
	var (
		m          domain.Market
		id         int64
		expiresAt  int64
		createdAt  int64
		resolvedAt sql.NullInt64
		outcome    int64
		amounts    [4]string
	)
	if err := row.Scan(
		&id, &m.Name, &m.AssetSymbol, &expiresAt, &m.Feed, &amounts[0], &m.Resolved,
		&outcome, &amounts[1], &amounts[2], &amounts[3], &createdAt, &resolvedAt,
	); err != nil {
		return domain.Market{}, err
	}
	dst := [4]*domain.Amount{&m.Threshold, &m.TotalStake[domain.OutcomeBearish], &m.TotalStake[domain.OutcomeBullish], &m.MinStake}
	for i, s := range amounts {
		v, err := domain.ParseAmount(s)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market %d: %w", id, err)
		}
		*dst[i] = v
	}
	m.ID = uint64(id)
	m.WinningOutcome = domain.Outcome(outcome)
	m.ExpiresAt = fromUnixNano(expiresAt)
	m.CreatedAt = fromUnixNano(createdAt)
	if resolvedAt.Valid {
		t := fromUnixNano(resolvedAt.Int64)
		m.ResolvedAt = &t
	}
	return m, nil
}

func resolvedAtArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixNano(*t)
}

func (q *queries) InsertMarket(ctx context.Context, m domain.Market) (uint64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO markets (`+marketCols+`)
		 SELECT COALESCE(MAX(id), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? FROM markets
		 RETURNING id`,
		m.Name, m.AssetSymbol, unixNano(m.ExpiresAt), m.Feed, m.Threshold.String(), m.Resolved,
		int64(m.WinningOutcome), m.TotalStake[domain.OutcomeBearish].String(), m.TotalStake[domain.OutcomeBullish].String(),
		m.MinStake.String(), unixNano(m.CreatedAt), resolvedAtArg(m.ResolvedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert market: %w", err)
	}
	return uint64(id), nil
}

func (q *queries) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	m, err := scanMarket(q.db.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id = ?`, int64(id)))
	if err != nil {
		if isNoRows(err) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("sqlite: get market %d: %w", id, err)
	}
	return m, nil
}

func (q *queries) UpdateMarket(ctx context.Context, m domain.Market) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE markets SET name = ?, asset_symbol = ?, expires_at = ?, feed = ?, threshold = ?,
			resolved = ?, winning_outcome = ?, total_bearish = ?, total_bullish = ?, min_stake = ?,
			resolved_at = ?
		 WHERE id = ?`,
		m.Name, m.AssetSymbol, unixNano(m.ExpiresAt), m.Feed, m.Threshold.String(),
		m.Resolved, int64(m.WinningOutcome), m.TotalStake[domain.OutcomeBearish].String(), m.TotalStake[domain.OutcomeBullish].String(),
		m.MinStake.String(), resolvedAtArg(m.ResolvedAt), int64(m.ID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: update market %d: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

func (q *queries) CountMarkets(ctx context.Context) (uint64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count markets: %w", err)
	}
	return uint64(n), nil
}

func (q *queries) listMarkets(ctx context.Context, where string, args ...any) ([]domain.Market, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+marketCols+` FROM markets WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *queries) ListActive(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	ms, err := q.listMarkets(ctx, `resolved = 0 AND expires_at > ? ORDER BY id LIMIT ? OFFSET ?`,
		unixNano(now), limitOrAll(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active markets: %w", err)
	}
	return ms, nil
}

func (q *queries) ListDue(ctx context.Context, fromID, toID uint64, now time.Time, limit int) ([]domain.Market, error) {
	if toID > 1<<63-1 {
		toID = 1<<63 - 1
	}
	if fromID > toID {
		return nil, nil
	}
	ms, err := q.listMarkets(ctx, `id BETWEEN ? AND ? AND resolved = 0 AND expires_at <= ? ORDER BY id LIMIT ?`,
		int64(fromID), int64(toID), unixNano(now), limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list due markets: %w", err)
	}
	return ms, nil
}

func (q *queries) ListResolved(ctx context.Context, since, until time.Time, limit int) ([]domain.Market, error) {
	ms, err := q.listMarkets(ctx, `resolved = 1 AND resolved_at >= ? AND resolved_at < ? ORDER BY id LIMIT ?`,
		unixNano(since), unixNano(until), limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list resolved markets: %w", err)
	}
	return ms, nil
}
