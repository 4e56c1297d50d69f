package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
	"github.com/alanyoungcy/convictionmarket/internal/server/middleware"
)

// PredictionHandler records predictions for the signed caller.
type PredictionHandler struct {
	deps   Deps
	logger *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(deps Deps) *PredictionHandler {
	return &PredictionHandler{deps: deps, logger: deps.logger()}
}

// Create records a prediction.
// POST /api/predictions
func (h *PredictionHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unsigned request", Code: "unauthenticated"})
		return
	}
	var req PredictionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	stake, err := parseAmount("stake", req.Stake)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rcpt, err := h.deps.Engine.RecordPrediction(r.Context(), engine.PredictionRequest{
		User:          caller,
		MarketID:      req.MarketID,
		Outcome:       outcome,
		DeclaredStake: stake,
		ValueSent:     value,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt)
}
