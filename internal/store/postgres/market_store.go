package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

const marketCols = `id, name, asset_symbol, expires_at, feed, threshold::text,
	resolved, winning_outcome, total_bearish::text, total_bullish::text,
	min_stake::text, created_at, resolved_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m         domain.Market
		id        int64
		outcome   int16
		threshold string
		bear      string
		bull      string
		minStake  string
	)
	if err := row.Scan(
		&id, &m.Name, &m.AssetSymbol, &m.ExpiresAt, &m.Feed, &threshold,
		&m.Resolved, &outcome, &bear, &bull,
		&minStake, &m.CreatedAt, &m.ResolvedAt,
	); err != nil {
		return domain.Market{}, err
	}
	m.ID = uint64(id)
	m.WinningOutcome = domain.Outcome(outcome)

	fields := []struct {
		dst *domain.Amount
		src string
	}{
		{&m.Threshold, threshold},
		{&m.TotalStake[domain.OutcomeBearish], bear},
		{&m.TotalStake[domain.OutcomeBullish], bull},
		{&m.MinStake, minStake},
	}
	for _, f := range fields {
		v, err := domain.ParseAmount(f.src)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market %d: %w", id, err)
		}
		*f.dst = v
	}
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
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

// InsertMarket allocates the next id as max(id)+1 under an advisory lock so
// ids stay gapless even when transactions roll back.
func (q *queries) InsertMarket(ctx context.Context, m domain.Market) (uint64, error) {
	if _, err := q.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('markets'))`); err != nil {
		return 0, fmt.Errorf("postgres: lock market ids: %w", err)
	}
	const query = `
		INSERT INTO markets (
			id, name, asset_symbol, expires_at, feed, threshold,
			resolved, winning_outcome, total_bearish, total_bullish,
			min_stake, created_at, resolved_at
		)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3, $4, $5::text::numeric,
			$6, $7, $8::text::numeric, $9::text::numeric,
			$10::text::numeric, $11, $12
		FROM markets
		RETURNING id`
	var id int64
	err := q.q.QueryRow(ctx, query,
		m.Name, m.AssetSymbol, m.ExpiresAt, m.Feed, m.Threshold.String(),
		m.Resolved, int16(m.WinningOutcome),
		m.TotalStake[domain.OutcomeBearish].String(), m.TotalStake[domain.OutcomeBullish].String(),
		m.MinStake.String(), m.CreatedAt, m.ResolvedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert market: %w", err)
	}
	return uint64(id), nil
}

func (q *queries) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	key, err := toID(id)
	if err != nil {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	m, err := scanMarket(q.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`+q.lockClause(), key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

func (q *queries) UpdateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			name            = $2,
			asset_symbol    = $3,
			expires_at      = $4,
			feed            = $5,
			threshold       = $6::text::numeric,
			resolved        = $7,
			winning_outcome = $8,
			total_bearish   = $9::text::numeric,
			total_bullish   = $10::text::numeric,
			min_stake       = $11::text::numeric,
			resolved_at     = $12
		WHERE id = $1`
	key, err := toID(m.ID)
	if err != nil {
		return domain.ErrMarketNotFound
	}
	tag, err := q.q.Exec(ctx, query,
		key, m.Name, m.AssetSymbol, m.ExpiresAt, m.Feed, m.Threshold.String(),
		m.Resolved, int16(m.WinningOutcome),
		m.TotalStake[domain.OutcomeBearish].String(), m.TotalStake[domain.OutcomeBullish].String(),
		m.MinStake.String(), m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

func (q *queries) CountMarkets(ctx context.Context) (uint64, error) {
	var n int64
	if err := q.q.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return uint64(n), nil
}

func (q *queries) ListActive(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE NOT resolved AND expires_at > $1
		 ORDER BY id LIMIT $2 OFFSET $3`,
		now, limitOrAll(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	ms, err := collectMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active markets: %w", err)
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
	rows, err := q.q.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE id BETWEEN $1 AND $2 AND NOT resolved AND expires_at <= $3
		 ORDER BY id LIMIT $4`,
		int64(fromID), int64(toID), now, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: list due markets: %w", err)
	}
	ms, err := collectMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan due markets: %w", err)
	}
	return ms, nil
}

func (q *queries) ListResolved(ctx context.Context, since, until time.Time, limit int) ([]domain.Market, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE resolved AND resolved_at >= $1 AND resolved_at < $2
		 ORDER BY id LIMIT $3`,
		since, until, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets: %w", err)
	}
	ms, err := collectMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan resolved markets: %w", err)
	}
	return ms, nil
}
