package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
	"github.com/alanyoungcy/soltraderbot/internal/executor"
	"github.com/alanyoungcy/soltraderbot/internal/service"
)

// PositionCloser sells a position and records the resulting trade.
type PositionCloser interface {
	ClosePosition(ctx context.Context, positionID string, reason executor.CloseReason) (domain.Trade, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions domain.PositionStore
	closer    PositionCloser
	tokens    *service.TokenService // nil disables symbol enrichment
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given store, closer
// and logger.
func NewPositionHandler(positions domain.PositionStore, closer PositionCloser, tokens *service.TokenService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		closer:    closer,
		tokens:    tokens,
		logger:    logHandler(logger, "positions"),
	}
}

// enrich fills token symbols on the views when a resolver is configured.
func (h *PositionHandler) enrich(ctx context.Context, views []positionView) {
	if h.tokens == nil {
		return
	}
	for i := range views {
		views[i].TokenSymbol = h.tokens.Symbol(ctx, views[i].TokenAddress)
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
}

// ListActive returns all currently open positions.
// GET /api/positions
func (h *PositionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list active positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	views := toPositionViews(positions)
	h.enrich(r.Context(), views)
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: views})
}

// ListHistory returns closed and liquidated positions, most recent exits
// first.
// GET /api/positions/history?limit=50&offset=0
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.ListHistory(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list position history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: toPositionViews(positions)})
}

// GetPosition returns a single position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get position failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}
	writeJSON(w, http.StatusOK, toPositionView(pos))
}

// closePositionResponse wraps the trade produced by a manual close.
type closePositionResponse struct {
	Trade tradeView `json:"trade"`
}

// ClosePosition manually sells a position at the current market price.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	log := h.logger.With(slog.String("position_id", id))

	trade, err := h.closer.ClosePosition(r.Context(), id, executor.ReasonManual)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "position not found")
		case errors.Is(err, domain.ErrPositionClosed):
			writeError(w, http.StatusConflict, "position already closed")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "position close already in progress")
		case errors.Is(err, domain.ErrInsufficientBalance):
			writeError(w, http.StatusUnprocessableEntity, "no on-chain balance to sell")
		default:
			log.ErrorContext(r.Context(), "manual close failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to close position")
		}
		return
	}

	log.InfoContext(r.Context(), "position closed manually",
		slog.String("trade_id", trade.ID),
		slog.Float64("profit_loss", trade.ProfitLoss),
	)
	writeJSON(w, http.StatusOK, closePositionResponse{Trade: toTradeView(trade)})
}

// updateStopRequest carries a trailing-stop adjustment.
type updateStopRequest struct {
	TrailingStopPct float64 `json:"trailing_stop_pct"`
}

// UpdateTrailingStop adjusts the trailing-stop distance on an open position.
// PUT /api/positions/{id}/stop
func (h *PositionHandler) UpdateTrailingStop(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req updateStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TrailingStopPct <= 0 || req.TrailingStopPct > 100 {
		writeError(w, http.StatusBadRequest, "trailing_stop_pct must be in (0, 100]")
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}
	if !pos.Active() {
		writeError(w, http.StatusConflict, "position is not active")
		return
	}

	if err := h.positions.SetTrailingStopPct(r.Context(), id, req.TrailingStopPct); err != nil {
		h.logger.ErrorContext(r.Context(), "update trailing stop failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update trailing stop")
		return
	}

	pos.TrailingStopPct = req.TrailingStopPct
	writeJSON(w, http.StatusOK, toPositionView(pos))
}
