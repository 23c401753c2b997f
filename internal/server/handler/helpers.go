package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// parseTimeParam reads an RFC 3339 timestamp from the query string,
// returning fallback when absent or malformed.
func parseTimeParam(r *http.Request, name string, fallback time.Time) time.Time {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return fallback
	}
	return t
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}

// positionView is the JSON representation of a position.
type positionView struct {
	ID              string     `json:"id"`
	TokenAddress    string     `json:"token_address"`
	TokenSymbol     string     `json:"token_symbol,omitempty"`
	Amount          float64    `json:"amount"`
	EntryPrice      float64    `json:"entry_price"`
	CurrentPrice    *float64   `json:"current_price"`
	HighestPrice    float64    `json:"highest_price"`
	LastUpdated     time.Time  `json:"last_updated"`
	ProfitLoss      float64    `json:"profit_loss"`
	ProfitLossPct   *float64   `json:"profit_loss_pct"`
	Status          string     `json:"status"`
	TrailingStopPct float64    `json:"trailing_stop_pct"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
}

func toPositionView(p domain.Position) positionView {
	v := positionView{
		ID:              p.ID,
		TokenAddress:    p.TokenAddress,
		Amount:          p.Amount,
		EntryPrice:      p.EntryPrice,
		CurrentPrice:    p.CurrentPrice,
		HighestPrice:    p.HighestPrice,
		LastUpdated:     p.LastUpdated,
		ProfitLoss:      p.ProfitLoss,
		Status:          string(p.Status),
		TrailingStopPct: p.TrailingStopPct,
		ExitTime:        p.ExitTime,
	}
	if pct, ok := p.LastPct(); ok {
		v.ProfitLossPct = &pct
	}
	return v
}

func toPositionViews(positions []domain.Position) []positionView {
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	return views
}

// tradeView is the JSON representation of a trade record.
type tradeView struct {
	ID           string     `json:"id"`
	TokenAddress string     `json:"token_address"`
	SignalID     string     `json:"signal_id,omitempty"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	PositionSize float64    `json:"position_size"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	ProfitLoss   float64    `json:"profit_loss"`
	Status       string     `json:"status"`
	TxID         string     `json:"tx_id,omitempty"`
}

func toTradeView(t domain.Trade) tradeView {
	return tradeView{
		ID:           t.ID,
		TokenAddress: t.TokenAddress,
		SignalID:     t.SignalID,
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		PositionSize: t.PositionSize,
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
		ProfitLoss:   t.ProfitLoss,
		Status:       string(t.Status),
		TxID:         t.TxID,
	}
}
