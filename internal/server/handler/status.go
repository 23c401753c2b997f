package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// StatusHandler serves the aggregated portfolio-status endpoint.
type StatusHandler struct {
	positions domain.PositionStore
	trades    domain.TradeStore
	wallet    domain.WalletClient
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler with the given dependencies.
func NewStatusHandler(positions domain.PositionStore, trades domain.TradeStore, wallet domain.WalletClient, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		positions: positions,
		trades:    trades,
		wallet:    wallet,
		logger:    logHandler(logger, "status"),
	}
}

// statusResponse is the aggregated portfolio view.
type statusResponse struct {
	Timestamp            time.Time `json:"timestamp"`
	NativeBalance        float64   `json:"native_balance"`
	ActivePositions      int       `json:"active_positions"`
	ActivePositionsValue float64   `json:"active_positions_value"`
	UnrealizedPnL        float64   `json:"unrealized_pnl"`
	RealizedPnL          float64   `json:"realized_pnl"`
}

// GetStatus returns a point-in-time portfolio summary: wallet balance, open
// position count and value, and realized plus unrealized profit/loss.
// GET /api/status
//
// Positions without a cached price contribute nothing to the value and
// unrealized figures, mirroring how snapshots are taken.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	positions, err := h.positions.ListActive(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list active positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute status")
		return
	}

	realized, err := h.trades.SumClosedPnL(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "sum closed pnl failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute status")
		return
	}

	native, err := h.wallet.NativeBalance(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "native balance lookup failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute status")
		return
	}

	var positionsValue, unrealized float64
	for _, pos := range positions {
		if pos.CurrentPrice == nil {
			continue
		}
		positionsValue += pos.Amount * *pos.CurrentPrice
		unrealized += pos.ProfitLoss
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Timestamp:            time.Now().UTC(),
		NativeBalance:        native,
		ActivePositions:      len(positions),
		ActivePositionsValue: positionsValue,
		UnrealizedPnL:        unrealized,
		RealizedPnL:          realized,
	})
}
