package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// eventStream is the durable stream position lifecycle events are mirrored
// to.
const eventStream = "stream:events"

// EventHandler serves the replayable position-event stream.
type EventHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler reading from the given bus.
func NewEventHandler(bus domain.SignalBus, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		bus:    bus,
		logger: logHandler(logger, "events"),
	}
}

// eventView is one stream entry. Payloads are emitted as JSON objects, so
// they are passed through verbatim.
type eventView struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// listEventsResponse wraps the event stream response. LastID feeds the next
// request's after parameter.
type listEventsResponse struct {
	Events []eventView `json:"events"`
	LastID string      `json:"last_id,omitempty"`
}

// ListEvents returns position lifecycle events after the given stream ID.
// GET /api/events?after=0&count=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}

	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			count = n
		}
	}

	msgs, err := h.bus.StreamRead(r.Context(), eventStream, after, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read event stream failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	resp := listEventsResponse{Events: make([]eventView, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Events = append(resp.Events, eventView{ID: msg.ID, Event: json.RawMessage(msg.Payload)})
		resp.LastID = msg.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
