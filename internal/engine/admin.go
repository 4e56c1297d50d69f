package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// MarketSpec describes a market to create.
type MarketSpec struct {
	Name        string
	AssetSymbol string
	ExpiresAt   time.Time
	Feed        string
	Threshold   domain.Amount
}

// OracleSpec binds a market to a price source. Feed and Threshold default
// to the market's own values when empty.
type OracleSpec struct {
	MarketID     uint64
	Provider     domain.Provider
	Feed         string
	Threshold    *domain.Amount
	ExpectedExpo *int32
}

// CreateMarket opens a new market and returns it with its assigned id.
func (e *Engine) CreateMarket(ctx context.Context, caller common.Address, spec MarketSpec) (domain.Market, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.Market{}, err
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return domain.Market{}, domain.ErrEmptyName
	}
	if spec.Threshold.IsZero() {
		return domain.Market{}, domain.ErrInvalidThreshold
	}

	var created domain.Market
	err := e.mutate(ctx, "create_market", func(ctx context.Context, s *scope) error {
		if !spec.ExpiresAt.After(s.now) {
			return domain.ErrInvalidExpiration
		}
		m := domain.Market{
			Name:        name,
			AssetSymbol: strings.ToUpper(strings.TrimSpace(spec.AssetSymbol)),
			ExpiresAt:   spec.ExpiresAt.UTC(),
			Feed:        strings.TrimSpace(spec.Feed),
			Threshold:   spec.Threshold,
			MinStake:    e.Settings().GlobalMinStake,
			CreatedAt:   s.now,
		}
		id, err := s.tx.InsertMarket(ctx, m)
		if err != nil {
			return fmt.Errorf("engine: insert market: %w", err)
		}
		m.ID = id
		created = m
		s.emit(domain.Event{
			Type:     domain.EventMarketCreated,
			MarketID: id,
			Actor:    addrPtr(caller),
			Detail: map[string]string{
				"name":       m.Name,
				"asset":      m.AssetSymbol,
				"expires_at": m.ExpiresAt.Format(time.RFC3339),
				"threshold":  m.Threshold.String(),
			},
		})
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}

	e.logger.InfoContext(ctx, "engine: market created",
		slog.Uint64("market_id", created.ID),
		slog.String("name", created.Name),
		slog.Time("expires_at", created.ExpiresAt),
	)
	return created, nil
}

// RegisterOracle binds a market to its resolving feed. A market can be
// registered once.
func (e *Engine) RegisterOracle(ctx context.Context, caller common.Address, spec OracleSpec) (domain.OracleRegistration, error) {
	if err := e.requireOwner(caller); err != nil {
		return domain.OracleRegistration{}, err
	}
	if _, err := domain.ParseProvider(string(spec.Provider)); err != nil {
		return domain.OracleRegistration{}, err
	}

	var reg domain.OracleRegistration
	err := e.mutate(ctx, "register_oracle", func(ctx context.Context, s *scope) error {
		m, err := s.tx.GetMarket(ctx, spec.MarketID)
		if err != nil {
			return err
		}
		if m.Resolved {
			return domain.ErrMarketResolved
		}
		reg = domain.OracleRegistration{
			MarketID:     m.ID,
			Provider:     spec.Provider,
			Feed:         strings.TrimSpace(spec.Feed),
			Threshold:    m.Threshold,
			ExpectedExpo: spec.ExpectedExpo,
			RegisteredAt: s.now,
		}
		if reg.Feed == "" {
			reg.Feed = m.Feed
		}
		if reg.Feed == "" {
			return fmt.Errorf("%w: feed is required", domain.ErrInvalidProvider)
		}
		if spec.Threshold != nil {
			if spec.Threshold.IsZero() {
				return domain.ErrInvalidThreshold
			}
			reg.Threshold = *spec.Threshold
		}
		if err := s.tx.RegisterOracle(ctx, reg); err != nil {
			return err
		}
		s.emit(domain.Event{
			Type:     domain.EventOracleRegistered,
			MarketID: m.ID,
			Actor:    addrPtr(caller),
			Detail: map[string]string{
				"provider":  string(reg.Provider),
				"feed":      reg.Feed,
				"threshold": reg.Threshold.String(),
			},
		})
		return nil
	})
	if err != nil {
		return domain.OracleRegistration{}, err
	}
	return reg, nil
}

// SetFeeBps changes the prediction fee. bps must not exceed 10000.
func (e *Engine) SetFeeBps(ctx context.Context, caller common.Address, bps uint32) error {
	if bps > domain.BasisPointsDenominator {
		return domain.ErrInvalidFee
	}
	return e.updateSettings(ctx, caller, "fee_bps", strconv.FormatUint(uint64(bps), 10), func(s *Settings) {
		s.FeeBps = bps
	})
}

// SetGlobalMinStake changes the minimum stake copied into new markets and
// applied to markets without their own minimum.
func (e *Engine) SetGlobalMinStake(ctx context.Context, caller common.Address, minStake domain.Amount) error {
	return e.updateSettings(ctx, caller, "global_min_stake", minStake.String(), func(s *Settings) {
		s.GlobalMinStake = minStake
	})
}

// SetMaxStaleness changes the oracle staleness bound.
func (e *Engine) SetMaxStaleness(ctx context.Context, caller common.Address, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("engine: max staleness must be positive")
	}
	return e.updateSettings(ctx, caller, "max_staleness", d.String(), func(s *Settings) {
		s.MaxStaleness = d
	})
}

// SetTreasury changes the fee recipient.
func (e *Engine) SetTreasury(ctx context.Context, caller common.Address, treasury common.Address) error {
	if treasury == (common.Address{}) {
		return domain.ErrInvalidAddress
	}
	return e.updateSettings(ctx, caller, "treasury", treasury.Hex(), func(s *Settings) {
		s.Treasury = treasury
	})
}

func (e *Engine) updateSettings(ctx context.Context, caller common.Address, key, value string, apply func(*Settings)) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	ctx, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	e.cfgMu.Lock()
	apply(&e.settings)
	e.cfgMu.Unlock()

	e.logger.InfoContext(ctx, "engine: settings updated",
		slog.String(key, value),
	)
	e.publish(ctx, []domain.Event{{
		Type:       domain.EventSettingsUpdated,
		Actor:      addrPtr(caller),
		Detail:     map[string]string{key: value},
		OccurredAt: e.now(),
	}})
	return nil
}

// SetMarketMinStake overrides the minimum stake of one market. Zero falls
// back to the global minimum.
func (e *Engine) SetMarketMinStake(ctx context.Context, caller common.Address, marketID uint64, minStake domain.Amount) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	return e.mutate(ctx, "set_market_min_stake", func(ctx context.Context, s *scope) error {
		m, err := s.tx.GetMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Resolved {
			return domain.ErrMarketResolved
		}
		m.MinStake = minStake
		if err := s.tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("engine: update market %d: %w", marketID, err)
		}
		s.emit(domain.Event{
			Type:     domain.EventSettingsUpdated,
			MarketID: marketID,
			Actor:    addrPtr(caller),
			Detail:   map[string]string{"min_stake": minStake.String()},
		})
		return nil
	})
}

// Designate mints a fresh grant for role and revokes the previous holder.
func (e *Engine) Designate(ctx context.Context, caller common.Address, role domain.Role) (*domain.Grant, error) {
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	g := domain.NewGrant(role)
	e.cfgMu.Lock()
	switch role {
	case domain.RoleResolver:
		e.resolver = g
	case domain.RoleDistributor:
		e.distributor = g
	default:
		e.cfgMu.Unlock()
		return nil, fmt.Errorf("engine: unknown role %q: %w", role, domain.ErrUnauthorized)
	}
	e.cfgMu.Unlock()

	e.logger.InfoContext(ctx, "engine: role designated",
		slog.String("role", string(role)),
		slog.String("grant", g.Token()),
	)
	return g, nil
}
