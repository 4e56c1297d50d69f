// Package engine implements the market lifecycle: market administration,
// prediction recording, resolution and reward settlement.
//
// Every state-changing operation runs to completion behind a single mutex
// and inside one store transaction, so the engine is a single mutation
// stream: an operation either commits fully or leaves no trace. Value
// transfers happen inside the transaction after all state has been read and
// staged; if the transaction later fails, completed transfers are reversed
// through domain.Reverser when the vault supports it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Settings are the process-wide administrative parameters.
type Settings struct {
	Owner          common.Address
	Treasury       common.Address
	FeeBps         uint32
	GlobalMinStake domain.Amount
	MaxStaleness   time.Duration
}

// Validate checks settings for values the engine cannot run with.
func (s Settings) Validate() error {
	if s.Owner == (common.Address{}) {
		return fmt.Errorf("engine: owner: %w", domain.ErrInvalidAddress)
	}
	if s.Treasury == (common.Address{}) {
		return fmt.Errorf("engine: treasury: %w", domain.ErrInvalidAddress)
	}
	if s.FeeBps > domain.BasisPointsDenominator {
		return fmt.Errorf("engine: %w", domain.ErrInvalidFee)
	}
	if s.MaxStaleness <= 0 {
		return fmt.Errorf("engine: max staleness must be positive")
	}
	return nil
}

// Recorder receives engine metrics.
type Recorder interface {
	PredictionRecorded(outcome domain.Outcome, stake, fee domain.Amount)
	MarketResolved(outcome domain.Outcome)
	RewardClaimed(payout domain.Amount)
	OperationFailed(op string, err error)
}

type nopRecorder struct{}

func (nopRecorder) PredictionRecorded(domain.Outcome, domain.Amount, domain.Amount) {}
func (nopRecorder) MarketResolved(domain.Outcome)                                  {}
func (nopRecorder) RewardClaimed(domain.Amount)                                    {}
func (nopRecorder) OperationFailed(string, error)                                  {}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the destination for committed events.
func WithPublisher(p domain.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// Engine is the market lifecycle state machine.
type Engine struct {
	mu sync.Mutex

	store     domain.Store
	vault     domain.Vault
	publisher domain.EventPublisher
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time

	cfgMu       sync.RWMutex
	settings    Settings
	resolver    *domain.Grant
	distributor *domain.Grant
}

// New creates an Engine over store and vault.
func New(store domain.Store, vault domain.Vault, settings Settings, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:    store,
		vault:    vault,
		metrics:  nopRecorder{},
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
		settings: settings,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Settings returns a snapshot of the current settings.
func (e *Engine) Settings() Settings {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.settings
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

type mutationKey struct{}

// scope carries per-operation state through a transaction.
type scope struct {
	tx     domain.Tx
	j      *journal
	now    time.Time
	events []domain.Event
}

func (s *scope) emit(ev domain.Event) {
	ev.OccurredAt = s.now
	s.events = append(s.events, ev)
}

// lock enters the mutation stream. A context that is already inside a
// mutation is rejected so that a vault calling back into the engine cannot
// re-enter it.
func (e *Engine) lock(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(mutationKey{}) != nil {
		return nil, nil, domain.ErrReentrantCall
	}
	e.mu.Lock()
	return context.WithValue(ctx, mutationKey{}, struct{}{}), e.mu.Unlock, nil
}

// mutate runs fn as one atomic operation and publishes its events after the
// commit.
func (e *Engine) mutate(ctx context.Context, op string, fn func(ctx context.Context, s *scope) error) error {
	ctx, unlock, err := e.lock(ctx)
	if err != nil {
		e.metrics.OperationFailed(op, err)
		return err
	}
	defer unlock()

	s := &scope{j: &journal{vault: e.vault}, now: e.now()}
	err = e.store.WithTx(ctx, func(tx domain.Tx) error {
		s.tx = tx
		return fn(ctx, s)
	})
	if err != nil {
		s.j.compensate(context.WithoutCancel(ctx), e.logger)
		e.metrics.OperationFailed(op, err)
		return err
	}

	e.publish(ctx, s.events)
	return nil
}

// publish delivers committed events. Delivery failures are logged only;
// the state change they describe has already committed.
func (e *Engine) publish(ctx context.Context, events []domain.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		ev.ID = uuid.NewString()
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.WarnContext(ctx, "engine: publish event failed",
				slog.String("type", string(ev.Type)),
				slog.Uint64("market_id", ev.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) requireOwner(caller common.Address) error {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if caller == (common.Address{}) || caller != e.settings.Owner {
		return domain.ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireGrant(g *domain.Grant, role domain.Role) error {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	want := e.resolver
	if role == domain.RoleDistributor {
		want = e.distributor
	}
	if g == nil || want == nil || g != want {
		return domain.ErrUnauthorized
	}
	return nil
}

func addrPtr(a common.Address) *common.Address { return &a }

func amountPtr(a domain.Amount) *domain.Amount { return &a }

func outcomePtr(o domain.Outcome) *domain.Outcome { return &o }
