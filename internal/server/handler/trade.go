package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// TradeHandler serves trade history endpoints.
type TradeHandler struct {
	trades domain.TradeStore
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given store and logger.
func NewTradeHandler(trades domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logHandler(logger, "trades"),
	}
}

// listTradesResponse wraps the trade history response.
type listTradesResponse struct {
	Trades []tradeView `json:"trades"`
}

// ListTrades returns the trade history for a token, newest first.
// GET /api/trades?token=<mint>&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}

	trades, err := h.trades.ListByToken(r.Context(), token, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, toTradeView(t))
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: views})
}
