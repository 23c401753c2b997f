package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// BalanceHandler serves portfolio snapshot history.
type BalanceHandler struct {
	balances domain.BalanceStore
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler with the given store and logger.
func NewBalanceHandler(balances domain.BalanceStore, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		balances: balances,
		logger:   logHandler(logger, "balance"),
	}
}

// snapshotView is the JSON representation of a balance snapshot.
type snapshotView struct {
	Timestamp            time.Time `json:"timestamp"`
	TotalValue           float64   `json:"total_value"`
	ActivePositionsValue float64   `json:"active_positions_value"`
	ProfitLoss           float64   `json:"profit_loss"`
	ProfitLossPct        float64   `json:"profit_loss_pct"`
}

// listSnapshotsResponse wraps the snapshot history response.
type listSnapshotsResponse struct {
	Snapshots []snapshotView `json:"snapshots"`
}

// ListHistory returns balance snapshots within a time range. Defaults to the
// last 7 days when no range is given.
// GET /api/balance/history?since=2026-08-01T00:00:00Z&until=2026-08-30T00:00:00Z
func (h *BalanceHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	since := parseTimeParam(r, "since", now.AddDate(0, 0, -7))
	until := parseTimeParam(r, "until", now)
	if !until.After(since) {
		writeError(w, http.StatusBadRequest, "until must be after since")
		return
	}

	snaps, err := h.balances.ListRange(r.Context(), since, until)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list balance history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list balance history")
		return
	}

	views := make([]snapshotView, 0, len(snaps))
	for _, s := range snaps {
		views = append(views, snapshotView{
			Timestamp:            s.Timestamp,
			TotalValue:           s.TotalValue,
			ActivePositionsValue: s.ActivePositionsValue,
			ProfitLoss:           s.ProfitLoss,
			ProfitLossPct:        s.ProfitLossPct,
		})
	}
	writeJSON(w, http.StatusOK, listSnapshotsResponse{Snapshots: views})
}
