package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
)

// MarketView is the API form of a market.
type MarketView struct {
	ID             uint64          `json:"id"`
	Name           string          `json:"name"`
	AssetSymbol    string          `json:"asset_symbol"`
	Feed           string          `json:"feed,omitempty"`
	Threshold      domain.Amount   `json:"threshold"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Expired        bool            `json:"expired"`
	Resolved       bool            `json:"resolved"`
	WinningOutcome *domain.Outcome `json:"winning_outcome,omitempty"`
	BearishStake   domain.Amount   `json:"bearish_stake"`
	BullishStake   domain.Amount   `json:"bullish_stake"`
	MinStake       domain.Amount   `json:"min_stake"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

func marketView(m domain.Market, now time.Time) MarketView {
	v := MarketView{
		ID:           m.ID,
		Name:         m.Name,
		AssetSymbol:  m.AssetSymbol,
		Feed:         m.Feed,
		Threshold:    m.Threshold,
		ExpiresAt:    m.ExpiresAt,
		Expired:      m.Expired(now),
		Resolved:     m.Resolved,
		BearishStake: m.TotalStake[domain.OutcomeBearish],
		BullishStake: m.TotalStake[domain.OutcomeBullish],
		MinStake:     m.MinStake,
		CreatedAt:    m.CreatedAt,
		ResolvedAt:   m.ResolvedAt,
	}
	if o, ok := m.Winner(); ok {
		v.WinningOutcome = &o
	}
	return v
}

func marketViews(ms []domain.Market, now time.Time) []MarketView {
	out := make([]MarketView, 0, len(ms))
	for _, m := range ms {
		out = append(out, marketView(m, now))
	}
	return out
}

// PositionView is the API form of a position.
type PositionView struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	MarketID  uint64         `json:"market_id"`
	Outcome   domain.Outcome `json:"outcome"`
	Stake     domain.Amount  `json:"stake"`
	CreatedAt time.Time      `json:"created_at"`
}

func positionView(p domain.Position) PositionView {
	return PositionView{ID: p.ID, Owner: p.Owner, MarketID: p.MarketID, Outcome: p.Outcome, Stake: p.Stake, CreatedAt: p.CreatedAt}
}

func positionViews(ps []domain.Position) []PositionView {
	out := make([]PositionView, 0, len(ps))
	for _, p := range ps {
		out = append(out, positionView(p))
	}
	return out
}

// SettingsView is the API form of the engine settings.
type SettingsView struct {
	Owner          common.Address `json:"owner"`
	Treasury       common.Address `json:"treasury"`
	FeeBps         uint32         `json:"fee_bps"`
	GlobalMinStake domain.Amount  `json:"global_min_stake"`
	MaxStaleness   string         `json:"max_staleness"`
}

func settingsView(s engine.Settings) SettingsView {
	return SettingsView{
		Owner:          s.Owner,
		Treasury:       s.Treasury,
		FeeBps:         s.FeeBps,
		GlobalMinStake: s.GlobalMinStake,
		MaxStaleness:   s.MaxStaleness.String(),
	}
}

// PredictionRequest is the body of POST /api/predictions. Amounts are
// decimal strings in base units.
type PredictionRequest struct {
	MarketID uint64 `json:"market_id" validate:"required"`
	Outcome  string `json:"outcome" validate:"required,oneof=bearish bullish BEARISH BULLISH 0 1"`
	Stake    string `json:"stake" validate:"required,numeric"`
	Value    string `json:"value" validate:"required,numeric"`
}

// TransferRequest is the body of POST /api/positions/{id}/transfer.
type TransferRequest struct {
	To string `json:"to" validate:"required,eth_addr"`
}

// CreateMarketRequest is the body of POST /api/admin/markets.
type CreateMarketRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	AssetSymbol string    `json:"asset_symbol" validate:"omitempty,max=20"`
	ExpiresAt   time.Time `json:"expires_at" validate:"required"`
	Feed        string    `json:"feed" validate:"omitempty,max=128"`
	Threshold   string    `json:"threshold" validate:"required,numeric"`
}

// RegisterOracleRequest is the body of POST /api/admin/markets/{id}/oracle.
type RegisterOracleRequest struct {
	Provider     string `json:"provider" validate:"required,oneof=chainlink pyth cache"`
	Feed         string `json:"feed" validate:"omitempty,max=128"`
	Threshold    string `json:"threshold" validate:"omitempty,numeric"`
	ExpectedExpo *int32 `json:"expected_expo"`
}

// MinStakeRequest is the body of POST /api/admin/markets/{id}/min-stake.
type MinStakeRequest struct {
	MinStake string `json:"min_stake" validate:"required,numeric"`
}

// ResolveRequest is the optional body of POST
// /api/admin/markets/{id}/resolve. A price replaces the oracle reading.
type ResolveRequest struct {
	Price string `json:"price" validate:"omitempty,numeric"`
}

// SettingsRequest is the body of PUT /api/admin/settings. Absent fields
// are left unchanged.
type SettingsRequest struct {
	FeeBps         *uint32 `json:"fee_bps" validate:"omitempty,max=10000"`
	GlobalMinStake *string `json:"global_min_stake" validate:"omitempty,numeric"`
	MaxStaleness   *string `json:"max_staleness"`
	Treasury       *string `json:"treasury" validate:"omitempty,eth_addr"`
}
