// Package memory implements domain.Store in process memory. A transaction
// buffers its writes in an overlay over the committed state; the overlay is
// applied only when the transaction function succeeds, so a commit costs
// as much as the transaction changed. Nothing survives a restart: the
// backend serves tests and single-process development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

type participant struct {
	marketID uint64
	addr     common.Address
}

type state struct {
	markets      map[uint64]domain.Market
	participants map[participant]struct{}
	positions    map[uint64]domain.Position
	oracles      map[uint64]domain.OracleRegistration
	nextMarketID uint64
	nextPosID    uint64
}

func newState() *state {
	return &state{
		markets:      make(map[uint64]domain.Market),
		participants: make(map[participant]struct{}),
		positions:    make(map[uint64]domain.Position),
		oracles:      make(map[uint64]domain.OracleRegistration),
		nextMarketID: 1,
		nextPosID:    1,
	}
}

// overlay holds one transaction's writes.
type overlay struct {
	markets      map[uint64]domain.Market
	participants map[participant]struct{}
	positions    map[uint64]domain.Position
	retired      map[uint64]struct{}
	oracles      map[uint64]domain.OracleRegistration
	nextMarketID uint64
	nextPosID    uint64
}

func newOverlay(base *state) *overlay {
	return &overlay{
		markets:      make(map[uint64]domain.Market),
		participants: make(map[participant]struct{}),
		positions:    make(map[uint64]domain.Position),
		retired:      make(map[uint64]struct{}),
		oracles:      make(map[uint64]domain.OracleRegistration),
		nextMarketID: base.nextMarketID,
		nextPosID:    base.nextPosID,
	}
}

func (o *overlay) apply(st *state) {
	for id, m := range o.markets {
		st.markets[id] = m
	}
	for k := range o.participants {
		st.participants[k] = struct{}{}
	}
	for id := range o.retired {
		delete(st.positions, id)
	}
	for id, p := range o.positions {
		st.positions[id] = p
	}
	for id, reg := range o.oracles {
		st.oracles[id] = reg
	}
	st.nextMarketID = o.nextMarketID
	st.nextPosID = o.nextPosID
}

// Store is an in-memory domain.Store.
type Store struct {
	// mu guards cur against reads racing a commit. txMu serialises
	// transactions, so cur only changes under both.
	mu   sync.RWMutex
	txMu sync.Mutex
	cur  *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{cur: newState()}
}

// WithTx runs fn against the committed state plus its own writes.
// Transactions are serialised; reads made on the Store during a transaction
// see the last committed state.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	w := newOverlay(s.cur)
	if err := fn(&view{st: s.cur, w: w}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	w.apply(s.cur)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// read runs fn against the committed state.
func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{st: s.cur})
}

// write applies a single-operation write outside a transaction.
func (s *Store) write(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.WithTx(ctx, fn)
}

func (s *Store) InsertMarket(ctx context.Context, m domain.Market) (uint64, error) {
	var id uint64
	err := s.write(ctx, func(tx domain.Tx) error {
		var err error
		id, err = tx.InsertMarket(ctx, m)
		return err
	})
	return id, err
}

func (s *Store) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	err := s.read(func(v *view) error {
		var err error
		m, err = v.GetMarket(ctx, id)
		return err
	})
	return m, err
}

func (s *Store) UpdateMarket(ctx context.Context, m domain.Market) error {
	return s.write(ctx, func(tx domain.Tx) error { return tx.UpdateMarket(ctx, m) })
}

func (s *Store) CountMarkets(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.read(func(v *view) error {
		var err error
		n, err = v.CountMarkets(ctx)
		return err
	})
	return n, err
}

func (s *Store) ListActive(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	err := s.read(func(v *view) error {
		var err error
		out, err = v.ListActive(ctx, now, opts)
		return err
	})
	return out, err
}

func (s *Store) ListDue(ctx context.Context, fromID, toID uint64, now time.Time, limit int) ([]domain.Market, error) {
	var out []domain.Market
	err := s.read(func(v *view) error {
		var err error
		out, err = v.ListDue(ctx, fromID, toID, now, limit)
		return err
	})
	return out, err
}

func (s *Store) ListResolved(ctx context.Context, since, until time.Time, limit int) ([]domain.Market, error) {
	var out []domain.Market
	err := s.read(func(v *view) error {
		var err error
		out, err = v.ListResolved(ctx, since, until, limit)
		return err
	})
	return out, err
}

func (s *Store) HasPredicted(ctx context.Context, marketID uint64, addr common.Address) (bool, error) {
	var ok bool
	err := s.read(func(v *view) error {
		var err error
		ok, err = v.HasPredicted(ctx, marketID, addr)
		return err
	})
	return ok, err
}

func (s *Store) MarkPredicted(ctx context.Context, marketID uint64, addr common.Address) error {
	return s.write(ctx, func(tx domain.Tx) error { return tx.MarkPredicted(ctx, marketID, addr) })
}

func (s *Store) Issue(ctx context.Context, p domain.Position) (uint64, error) {
	var id uint64
	err := s.write(ctx, func(tx domain.Tx) error {
		var err error
		id, err = tx.Issue(ctx, p)
		return err
	})
	return id, err
}

func (s *Store) Retire(ctx context.Context, id uint64) error {
	return s.write(ctx, func(tx domain.Tx) error { return tx.Retire(ctx, id) })
}

func (s *Store) Describe(ctx context.Context, id uint64) (domain.Position, error) {
	var p domain.Position
	err := s.read(func(v *view) error {
		var err error
		p, err = v.Describe(ctx, id)
		return err
	})
	return p, err
}

func (s *Store) Transfer(ctx context.Context, id uint64, to common.Address) error {
	return s.write(ctx, func(tx domain.Tx) error { return tx.Transfer(ctx, id, to) })
}

func (s *Store) ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	err := s.read(func(v *view) error {
		var err error
		out, err = v.ListByOwner(ctx, owner, opts)
		return err
	})
	return out, err
}

func (s *Store) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	err := s.read(func(v *view) error {
		var err error
		out, err = v.ListByMarket(ctx, marketID, opts)
		return err
	})
	return out, err
}

func (s *Store) RegisterOracle(ctx context.Context, reg domain.OracleRegistration) error {
	return s.write(ctx, func(tx domain.Tx) error { return tx.RegisterOracle(ctx, reg) })
}

func (s *Store) GetOracle(ctx context.Context, marketID uint64) (domain.OracleRegistration, error) {
	var reg domain.OracleRegistration
	err := s.read(func(v *view) error {
		var err error
		reg, err = v.GetOracle(ctx, marketID)
		return err
	})
	return reg, err
}

// view implements domain.Tx over the committed state and, inside a
// transaction, that transaction's overlay. Views from read have no overlay
// and are never written.
type view struct {
	st *state
	w  *overlay
}

func (v *view) market(id uint64) (domain.Market, bool) {
	if v.w != nil {
		if m, ok := v.w.markets[id]; ok {
			return m, true
		}
	}
	m, ok := v.st.markets[id]
	return m, ok
}

func (v *view) position(id uint64) (domain.Position, bool) {
	if v.w != nil {
		if _, gone := v.w.retired[id]; gone {
			return domain.Position{}, false
		}
		if p, ok := v.w.positions[id]; ok {
			return p, true
		}
	}
	p, ok := v.st.positions[id]
	return p, ok
}

func (v *view) oracle(marketID uint64) (domain.OracleRegistration, bool) {
	if v.w != nil {
		if reg, ok := v.w.oracles[marketID]; ok {
			return reg, true
		}
	}
	reg, ok := v.st.oracles[marketID]
	return reg, ok
}

func (v *view) InsertMarket(_ context.Context, m domain.Market) (uint64, error) {
	m.ID = v.w.nextMarketID
	v.w.nextMarketID++
	v.w.markets[m.ID] = m
	return m.ID, nil
}

func (v *view) GetMarket(_ context.Context, id uint64) (domain.Market, error) {
	m, ok := v.market(id)
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m, nil
}

func (v *view) UpdateMarket(_ context.Context, m domain.Market) error {
	if _, ok := v.market(m.ID); !ok {
		return domain.ErrMarketNotFound
	}
	v.w.markets[m.ID] = m
	return nil
}

// Market ids are gapless and markets are never deleted.
func (v *view) CountMarkets(context.Context) (uint64, error) {
	next := v.st.nextMarketID
	if v.w != nil {
		next = v.w.nextMarketID
	}
	return next - 1, nil
}

func (v *view) sortedMarkets(keep func(domain.Market) bool) []domain.Market {
	var out []domain.Market
	for id := range v.st.markets {
		if m, _ := v.market(id); keep(m) {
			out = append(out, m)
		}
	}
	if v.w != nil {
		for id, m := range v.w.markets {
			if _, committed := v.st.markets[id]; !committed && keep(m) {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) ListActive(_ context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	out := v.sortedMarkets(func(m domain.Market) bool { return m.Active(now) })
	return page(out, opts), nil
}

func (v *view) ListDue(_ context.Context, fromID, toID uint64, now time.Time, limit int) ([]domain.Market, error) {
	if fromID == 0 {
		fromID = 1
	}
	var out []domain.Market
	for id := fromID; id <= toID; id++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		m, ok := v.market(id)
		if ok && m.Due(now) {
			out = append(out, m)
		}
		if id == ^uint64(0) {
			break
		}
	}
	return out, nil
}

func (v *view) ListResolved(_ context.Context, since, until time.Time, limit int) ([]domain.Market, error) {
	out := v.sortedMarkets(func(m domain.Market) bool {
		return m.Resolved && m.ResolvedAt != nil &&
			!m.ResolvedAt.Before(since) && m.ResolvedAt.Before(until)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) HasPredicted(_ context.Context, marketID uint64, addr common.Address) (bool, error) {
	key := participant{marketID, addr}
	if v.w != nil {
		if _, ok := v.w.participants[key]; ok {
			return true, nil
		}
	}
	_, ok := v.st.participants[key]
	return ok, nil
}

func (v *view) MarkPredicted(ctx context.Context, marketID uint64, addr common.Address) error {
	if ok, _ := v.HasPredicted(ctx, marketID, addr); ok {
		return domain.ErrAlreadyPredicted
	}
	v.w.participants[participant{marketID, addr}] = struct{}{}
	return nil
}

func (v *view) Issue(_ context.Context, p domain.Position) (uint64, error) {
	p.ID = v.w.nextPosID
	v.w.nextPosID++
	v.w.positions[p.ID] = p
	return p.ID, nil
}

func (v *view) Retire(_ context.Context, id uint64) error {
	if _, ok := v.position(id); !ok {
		return domain.ErrPositionNotFound
	}
	delete(v.w.positions, id)
	v.w.retired[id] = struct{}{}
	return nil
}

func (v *view) Describe(_ context.Context, id uint64) (domain.Position, error) {
	p, ok := v.position(id)
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return p, nil
}

func (v *view) Transfer(_ context.Context, id uint64, to common.Address) error {
	p, ok := v.position(id)
	if !ok {
		return domain.ErrPositionNotFound
	}
	p.Owner = to
	v.w.positions[id] = p
	return nil
}

func (v *view) listPositions(keep func(domain.Position) bool, opts domain.ListOpts) []domain.Position {
	var out []domain.Position
	for id := range v.st.positions {
		if p, ok := v.position(id); ok && keep(p) {
			out = append(out, p)
		}
	}
	if v.w != nil {
		for id, p := range v.w.positions {
			if _, committed := v.st.positions[id]; !committed && keep(p) {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts)
}

func (v *view) ListByOwner(_ context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	return v.listPositions(func(p domain.Position) bool { return p.Owner == owner }, opts), nil
}

func (v *view) ListByMarket(_ context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Position, error) {
	return v.listPositions(func(p domain.Position) bool { return p.MarketID == marketID }, opts), nil
}

func (v *view) RegisterOracle(_ context.Context, reg domain.OracleRegistration) error {
	if _, ok := v.oracle(reg.MarketID); ok {
		return domain.ErrOracleAlreadyRegistered
	}
	v.w.oracles[reg.MarketID] = reg
	return nil
}

func (v *view) GetOracle(_ context.Context, marketID uint64) (domain.OracleRegistration, error) {
	reg, ok := v.oracle(marketID)
	if !ok {
		return domain.OracleRegistration{}, domain.ErrOracleNotRegistered
	}
	return reg, nil
}

func page[T any](xs []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(xs) {
			return nil
		}
		xs = xs[opts.Offset:]
	}
	if opts.Limit > 0 && len(xs) > opts.Limit {
		xs = xs[:opts.Limit]
	}
	return xs
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*view)(nil)
)
