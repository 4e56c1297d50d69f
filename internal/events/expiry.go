package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// AnnounceFunc delivers an expiry notice, e.g. to the Redis expiry channel.
type AnnounceFunc func(ctx context.Context, n domain.ExpiryNotice) error

// ExpiryTimers arms one timer per created market and announces the market
// when its expiry passes, so schedulers can react without waiting for the
// next poll.
type ExpiryTimers struct {
	announce AnnounceFunc
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[uint64]*time.Timer
	closed bool
}

// NewExpiryTimers creates an ExpiryTimers announcing through announce.
func NewExpiryTimers(announce AnnounceFunc, now func() time.Time, logger *slog.Logger) *ExpiryTimers {
	if now == nil {
		now = time.Now
	}
	return &ExpiryTimers{
		announce: announce,
		now:      now,
		logger:   logger.With(slog.String("component", "expiry_timers")),
		timers:   make(map[uint64]*time.Timer),
	}
}

// Publish implements domain.EventPublisher. Only market_created events arm
// a timer; their detail carries the RFC 3339 expiry.
func (x *ExpiryTimers) Publish(_ context.Context, ev domain.Event) error {
	if ev.Type != domain.EventMarketCreated || ev.MarketID == 0 {
		return nil
	}
	at, err := time.Parse(time.RFC3339, ev.Detail["expires_at"])
	if err != nil {
		return nil
	}
	x.Arm(ev.MarketID, at)
	return nil
}

// Arm schedules an announcement for id at expiresAt. Re-arming an id
// replaces its timer. Markets already expired are announced immediately.
func (x *ExpiryTimers) Arm(id uint64, expiresAt time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	if t, ok := x.timers[id]; ok {
		t.Stop()
	}
	// Fire a second late so a scheduler with a lagging clock still sees it expired.
	delay := max(expiresAt.Sub(x.now())+time.Second, 0)
	x.timers[id] = time.AfterFunc(delay, func() { x.fire(id) })
}

// ArmActive arms timers for markets that already exist, typically the
// active markets at startup.
func (x *ExpiryTimers) ArmActive(markets []domain.Market) {
	for _, m := range markets {
		if !m.Resolved {
			x.Arm(m.ID, m.ExpiresAt)
		}
	}
}

// Pending returns how many timers are armed.
func (x *ExpiryTimers) Pending() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.timers)
}

func (x *ExpiryTimers) fire(id uint64) {
	x.mu.Lock()
	delete(x.timers, id)
	closed := x.closed
	x.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n := domain.ExpiryNotice{MarketID: id, ExpiredAt: x.now().UTC()}
	if err := x.announce(ctx, n); err != nil {
		x.logger.Warn("events: expiry announce failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// Stop cancels every pending timer. Later Arm calls are ignored.
func (x *ExpiryTimers) Stop() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	for id, t := range x.timers {
		t.Stop()
		delete(x.timers, id)
	}
}

var _ domain.EventPublisher = (*ExpiryTimers)(nil)
