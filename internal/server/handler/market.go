package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// MarketHandler serves the market read endpoints.
type MarketHandler struct {
	deps   Deps
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(deps Deps) *MarketHandler {
	return &MarketHandler{deps: deps, logger: deps.logger()}
}

type listMarketsResponse struct {
	Markets []MarketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListActive returns unresolved, unexpired markets.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	ms, err := h.deps.Engine.ActiveMarkets(r.Context(), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: marketViews(ms, h.deps.Engine.Now()),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// Count returns the number of markets ever created.
// GET /api/markets/count
func (h *MarketHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Engine.MarketCount(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": n})
}

// Get returns one market, served from the read cache when possible.
// GET /api/markets/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	m, err := h.market(r, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, marketView(m, h.deps.Engine.Now()))
}

func (h *MarketHandler) market(r *http.Request, id uint64) (domain.Market, error) {
	ctx := r.Context()
	if h.deps.Cache != nil {
		m, err := h.deps.Cache.Get(ctx, id)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "handler: market cache read", slog.String("error", err.Error()))
		}
	}
	m, err := h.deps.Engine.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Set(ctx, m); err != nil {
			h.logger.WarnContext(ctx, "handler: market cache write", slog.String("error", err.Error()))
		}
	}
	return m, nil
}

// Expired reports whether the market's expiry has passed.
// GET /api/markets/{id}/expired
func (h *MarketHandler) Expired(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	expired, err := h.deps.Engine.IsExpired(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "expired": expired})
}

// Participant reports whether address has predicted on the market.
// GET /api/markets/{id}/participants/{address}
func (h *MarketHandler) Participant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ok, err := h.deps.Engine.HasPredicted(r.Context(), id, addr)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "address": addr, "predicted": ok})
}

// Positions lists the outstanding positions on a market.
// GET /api/markets/{id}/positions
func (h *MarketHandler) Positions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ps, err := h.deps.Engine.ListPositionsByMarket(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positionViews(ps)})
}

// QuoteFee returns the fee and total value for a stake.
// GET /api/fees/quote?stake=...
func (h *MarketHandler) QuoteFee(w http.ResponseWriter, r *http.Request) {
	stake, err := parseAmount("stake", r.URL.Query().Get("stake"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	fee, total, err := h.deps.Engine.QuoteFee(stake)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stake":   stake,
		"fee":     fee,
		"total":   total,
		"fee_bps": h.deps.Engine.Settings().FeeBps,
	})
}
