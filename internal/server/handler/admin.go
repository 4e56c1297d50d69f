package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
	"github.com/alanyoungcy/convictionmarket/internal/oracle"
	"github.com/alanyoungcy/convictionmarket/internal/server/middleware"
)

// AdminHandler serves the owner-only endpoints. The engine enforces the
// owner check; the handler only forwards the signed caller.
type AdminHandler struct {
	deps   Deps
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(deps Deps) *AdminHandler {
	return &AdminHandler{deps: deps, logger: deps.logger()}
}

func (h *AdminHandler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	c, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unsigned request", Code: "unauthenticated"})
	}
	return c, ok
}

// CreateMarket creates a market.
// POST /api/admin/markets
func (h *AdminHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	threshold, err := parseAmount("threshold", req.Threshold)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.deps.Engine.CreateMarket(r.Context(), caller, engine.MarketSpec{
		Name:        req.Name,
		AssetSymbol: req.AssetSymbol,
		ExpiresAt:   req.ExpiresAt,
		Feed:        req.Feed,
		Threshold:   threshold,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, marketView(m, h.deps.Engine.Now()))
}

// RegisterOracle binds a price source to a market.
// POST /api/admin/markets/{id}/oracle
func (h *AdminHandler) RegisterOracle(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req RegisterOracleRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	spec := engine.OracleSpec{MarketID: id, Provider: provider, Feed: req.Feed, ExpectedExpo: req.ExpectedExpo}
	if req.Threshold != "" {
		t, err := parseAmount("threshold", req.Threshold)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		spec.Threshold = &t
	}
	reg, err := h.deps.Engine.RegisterOracle(r.Context(), caller, spec)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"market_id":     reg.MarketID,
		"provider":      reg.Provider,
		"feed":          reg.Feed,
		"threshold":     reg.Threshold,
		"expected_expo": reg.ExpectedExpo,
		"registered_at": reg.RegisteredAt,
	})
}

// SetMinStake overrides the market's minimum stake.
// POST /api/admin/markets/{id}/min-stake
func (h *AdminHandler) SetMinStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req MinStakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	minStake, err := parseAmount("min_stake", req.MinStake)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.deps.Engine.SetMarketMinStake(r.Context(), caller, id, minStake); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "min_stake": minStake})
}

// Resolve resolves an expired market without waiting for the scheduler,
// from its registered oracle or, when the body carries a price, from that
// price.
// POST /api/admin/markets/{id}/resolve
func (h *AdminHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if caller != h.deps.Engine.Settings().Owner {
		writeError(w, r, h.logger, domain.ErrUnauthorized)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req ResolveRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	var res oracle.Resolution
	if req.Price == "" {
		res, err = h.deps.Resolver.ResolveMarket(r.Context(), id)
	} else {
		var price domain.Amount
		if price, err = parseAmount("price", req.Price); err == nil {
			res, err = h.deps.Resolver.ResolveAtPrice(r.Context(), id, price, caller)
		}
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSettings returns the current engine settings.
// GET /api/admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsView(h.deps.Engine.Settings()))
}

// UpdateSettings applies each present field in turn and returns the
// resulting settings. A failing field stops the update; fields applied
// before it stay applied.
// PUT /api/admin/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req SettingsRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := h.applySettings(r.Context(), caller, req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView(h.deps.Engine.Settings()))
}

func (h *AdminHandler) applySettings(ctx context.Context, caller common.Address, req SettingsRequest) error {
	eng := h.deps.Engine
	if req.FeeBps != nil {
		if err := eng.SetFeeBps(ctx, caller, *req.FeeBps); err != nil {
			return err
		}
	}
	if req.GlobalMinStake != nil {
		a, err := parseAmount("global_min_stake", *req.GlobalMinStake)
		if err != nil {
			return err
		}
		if err := eng.SetGlobalMinStake(ctx, caller, a); err != nil {
			return err
		}
	}
	if req.MaxStaleness != nil {
		d, err := time.ParseDuration(*req.MaxStaleness)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: max_staleness %q", domain.ErrInvalidAmount, *req.MaxStaleness)
		}
		if err := eng.SetMaxStaleness(ctx, caller, d); err != nil {
			return err
		}
	}
	if req.Treasury != nil {
		if err := eng.SetTreasury(ctx, caller, common.HexToAddress(*req.Treasury)); err != nil {
			return err
		}
	}
	return nil
}
