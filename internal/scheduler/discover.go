package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// DefaultBatchCap bounds how many markets one discovery pass returns.
const DefaultBatchCap = 50

// Discoverer finds markets that are due for resolution.
type Discoverer interface {
	Discover(ctx context.Context) ([]uint64, error)
}

// MarketSource is the read side of the engine used by polling discovery.
type MarketSource interface {
	MarketCount(ctx context.Context) (uint64, error)
	DueMarkets(ctx context.Context, fromID, toID uint64, limit int) ([]domain.Market, error)
}

// PollConfig bounds a PollDiscoverer scan.
type PollConfig struct {
	// Start and Limit bound the id space scanned. Limit 0 means the highest
	// id in use.
	Start uint64
	Limit uint64
	// ScanWindow is how many ids one call inspects.
	ScanWindow uint64
	BatchCap   int
}

// PollDiscoverer walks the market id space with a rolling cursor so every
// call does bounded work regardless of how many markets exist.
type PollDiscoverer struct {
	src MarketSource
	cfg PollConfig

	mu     sync.Mutex
	cursor uint64
}

// NewPollDiscoverer creates a PollDiscoverer over src.
func NewPollDiscoverer(src MarketSource, cfg PollConfig) *PollDiscoverer {
	if cfg.Start == 0 {
		cfg.Start = 1
	}
	if cfg.ScanWindow == 0 {
		cfg.ScanWindow = 500
	}
	if cfg.BatchCap <= 0 {
		cfg.BatchCap = DefaultBatchCap
	}
	return &PollDiscoverer{src: src, cfg: cfg, cursor: cfg.Start}
}

// Discover implements Discoverer.
func (p *PollDiscoverer) Discover(ctx context.Context) ([]uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	end, err := p.src.MarketCount(ctx)
	if err != nil {
		return nil, err
	}
	if p.cfg.Limit > 0 && p.cfg.Limit < end {
		end = p.cfg.Limit
	}
	if end < p.cfg.Start {
		return nil, nil
	}
	if p.cursor < p.cfg.Start || p.cursor > end {
		p.cursor = p.cfg.Start
	}

	from := p.cursor
	to := from + p.cfg.ScanWindow - 1
	if to > end || to < from {
		to = end
	}
	due, err := p.src.DueMarkets(ctx, from, to, p.cfg.BatchCap)
	if err != nil {
		return nil, err
	}

	next := to + 1
	if len(due) == p.cfg.BatchCap {
		// Window not exhausted: resume right after the last hit.
		next = due[len(due)-1].ID + 1
	}
	if next > end {
		next = p.cfg.Start
	}
	p.cursor = next

	ids := make([]uint64, 0, len(due))
	for _, m := range due {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// EventDiscoverer buffers externally emitted expiry notices.
type EventDiscoverer struct {
	batchCap int

	mu      sync.Mutex
	pending []uint64
	queued  map[uint64]struct{}
	wake    chan struct{}
}

// NewEventDiscoverer creates an EventDiscoverer draining at most batchCap
// ids per call.
func NewEventDiscoverer(batchCap int) *EventDiscoverer {
	if batchCap <= 0 {
		batchCap = DefaultBatchCap
	}
	return &EventDiscoverer{
		batchCap: batchCap,
		queued:   make(map[uint64]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Notify queues a market id. Ids already queued are ignored.
func (e *EventDiscoverer) Notify(id uint64) {
	if id == 0 {
		return
	}
	e.mu.Lock()
	if _, ok := e.queued[id]; ok {
		e.mu.Unlock()
		return
	}
	e.queued[id] = struct{}{}
	e.pending = append(e.pending, id)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Wake fires after Notify queues a new id.
func (e *EventDiscoverer) Wake() <-chan struct{} {
	return e.wake
}

// Discover implements Discoverer.
func (e *EventDiscoverer) Discover(context.Context) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.pending)
	if n > e.batchCap {
		n = e.batchCap
	}
	ids := make([]uint64, n)
	copy(ids, e.pending[:n])
	e.pending = e.pending[n:]
	for _, id := range ids {
		delete(e.queued, id)
	}
	if len(e.pending) > 0 {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	return ids, nil
}

// Consume feeds JSON encoded domain.ExpiryNotice payloads from ch into the
// discoverer until ch closes or ctx is done.
func (e *EventDiscoverer) Consume(ctx context.Context, ch <-chan []byte, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var n domain.ExpiryNotice
			if err := json.Unmarshal(payload, &n); err != nil {
				logger.Warn("scheduler: bad expiry notice", slog.String("error", err.Error()))
				continue
			}
			e.Notify(n.MarketID)
		}
	}
}

// MultiDiscoverer merges several discoverers, dropping duplicate ids.
type MultiDiscoverer []Discoverer

// Discover implements Discoverer. Ids found by healthy discoverers are
// returned even when another one fails.
func (m MultiDiscoverer) Discover(ctx context.Context) ([]uint64, error) {
	seen := make(map[uint64]struct{})
	var (
		ids  []uint64
		errs []error
	)
	for _, d := range m {
		found, err := d.Discover(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, id := range found {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, errors.Join(errs...)
}
