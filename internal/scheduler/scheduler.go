// Package scheduler finds expired markets and drives them through oracle
// resolution. It never moves funds.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/oracle"
)

// Resolver resolves one market from its oracle.
type Resolver interface {
	ResolveMarket(ctx context.Context, marketID uint64) (oracle.Resolution, error)
}

// Checker re-reads market state before resolution is attempted.
type Checker interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	Now() time.Time
}

// Recorder receives scheduler metrics.
type Recorder interface {
	BatchProcessed(res BatchResult, took time.Duration)
}

// Config controls the scheduler loop.
type Config struct {
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
}

// BatchResult summarises one ProcessBatch call.
type BatchResult struct {
	Resolved []uint64
	Skipped  []uint64
	Failed   map[uint64]error
}

// Scheduler periodically resolves due markets.
type Scheduler struct {
	discoverer Discoverer
	checker    Checker
	resolver   Resolver
	cfg        Config
	logger     *slog.Logger

	locker    domain.LockManager
	publisher domain.EventPublisher
	metrics   Recorder
	wake      []<-chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLock makes each tick hold a distributed lock so only one scheduler
// instance works at a time.
func WithLock(l domain.LockManager) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithPublisher reports per-market failures as resolution_failed events.
func WithPublisher(p domain.EventPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// WithWake adds a channel that triggers an immediate tick.
func WithWake(ch <-chan struct{}) Option {
	return func(s *Scheduler) { s.wake = append(s.wake, ch) }
}

// New creates a Scheduler.
func New(d Discoverer, checker Checker, resolver Resolver, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "scheduler"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.Interval
	}
	s := &Scheduler{
		discoverer: d,
		checker:    checker,
		resolver:   resolver,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessBatch resolves every id that is still due. Ids that are unknown,
// already resolved or not yet expired are skipped. A failure on one id is
// recorded and never stops the rest of the batch.
func (s *Scheduler) ProcessBatch(ctx context.Context, ids []uint64) BatchResult {
	start := time.Now()
	res := BatchResult{Failed: make(map[uint64]error)}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		m, err := s.checker.GetMarket(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrMarketNotFound) {
				res.Skipped = append(res.Skipped, id)
				continue
			}
			s.fail(ctx, &res, id, err)
			continue
		}
		if !m.Due(s.checker.Now()) {
			res.Skipped = append(res.Skipped, id)
			continue
		}

		r, err := s.resolver.ResolveMarket(ctx, id)
		switch {
		case err == nil:
			res.Resolved = append(res.Resolved, id)
			s.logger.InfoContext(ctx, "scheduler: market resolved",
				slog.Uint64("market_id", id),
				slog.String("outcome", r.Outcome.String()),
			)
		case errors.Is(err, domain.ErrMarketResolved),
			errors.Is(err, domain.ErrMarketNotExpired),
			errors.Is(err, domain.ErrMarketNotFound):
			res.Skipped = append(res.Skipped, id)
		default:
			s.fail(ctx, &res, id, err)
		}
	}

	if s.metrics != nil {
		s.metrics.BatchProcessed(res, time.Since(start))
	}
	return res
}

func (s *Scheduler) fail(ctx context.Context, res *BatchResult, id uint64, err error) {
	res.Failed[id] = err
	s.logger.WarnContext(ctx, "scheduler: resolution failed",
		slog.Uint64("market_id", id),
		slog.String("code", domain.CodeOf(err)),
		slog.String("error", err.Error()),
	)
	if s.publisher == nil {
		return
	}
	ev := domain.Event{
		Type:     domain.EventResolutionFailed,
		MarketID: id,
		Detail: map[string]string{
			"code":  domain.CodeOf(err),
			"error": err.Error(),
		},
		OccurredAt: s.checker.Now(),
	}
	if perr := s.publisher.Publish(ctx, ev); perr != nil {
		s.logger.WarnContext(ctx, "scheduler: publish failure event",
			slog.Uint64("market_id", id),
			slog.String("error", perr.Error()),
		)
	}
}

// Tick runs one discovery and resolution pass.
func (s *Scheduler) Tick(ctx context.Context) (BatchResult, error) {
	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return BatchResult{}, nil
		}
		if err != nil {
			return BatchResult{}, fmt.Errorf("scheduler: acquire lock: %w", err)
		}
		defer unlock()
	}

	ids, err := s.discoverer.Discover(ctx)
	if err != nil {
		// Partial discovery still yields work.
		s.logger.WarnContext(ctx, "scheduler: discovery failed", slog.String("error", err.Error()))
	}
	if len(ids) == 0 {
		return BatchResult{}, err
	}
	res := s.ProcessBatch(ctx, ids)
	s.logger.InfoContext(ctx, "scheduler: batch processed",
		slog.Int("resolved", len(res.Resolved)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failed)),
	)
	return res, err
}

// Run ticks on the configured interval and on wake-ups until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Bool("lock", s.locker != nil),
	)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	wake := merge(ctx, s.wake)
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "scheduler: tick failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

func merge(ctx context.Context, chans []<-chan struct{}) <-chan struct{} {
	out := make(chan struct{}, 1)
	for _, ch := range chans {
		go func(ch <-chan struct{}) {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}(ch)
	}
	return out
}
