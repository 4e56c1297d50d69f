package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/server/middleware"
)

// PositionHandler serves position reads, claims and transfers.
type PositionHandler struct {
	deps   Deps
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(deps Deps) *PositionHandler {
	return &PositionHandler{deps: deps, logger: deps.logger()}
}

// Get returns one outstanding position.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	p, err := h.deps.Engine.GetPosition(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, positionView(p))
}

// Preview returns what a claim would pay now.
// GET /api/positions/{id}/preview
func (h *PositionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	payout, err := h.deps.Claimer.Preview(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"position_id": id, "payout": payout})
}

// ByOwner lists positions held by an address.
// GET /api/accounts/{address}/positions
func (h *PositionHandler) ByOwner(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ps, err := h.deps.Engine.ListPositionsByOwner(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positionViews(ps)})
}

// Claim pays the signed caller's winning position.
// POST /api/positions/{id}/claim
func (h *PositionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unsigned request", Code: "unauthenticated"})
		return
	}
	payout, err := h.deps.Claimer.Claim(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"position_id": id, "payout": payout})
}

// Transfer moves the caller's position to another address.
// POST /api/positions/{id}/transfer
func (h *PositionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unsigned request", Code: "unauthenticated"})
		return
	}
	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	to := common.HexToAddress(req.To)
	if err := h.deps.Engine.TransferPosition(r.Context(), id, caller, to); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"position_id": id, "owner": to})
}
