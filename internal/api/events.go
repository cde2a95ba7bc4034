package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tripflow/pkg/engine"
	"tripflow/pkg/eventq"
	"tripflow/pkg/session"
)

// EventsHandler handles the per-trip event queue endpoints.
type EventsHandler struct {
	engine *engine.Engine
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(eng *engine.Engine) *EventsHandler {
	return &EventsHandler{engine: eng}
}

// InjectRequest is the body for POST /api/events/{tripID}. Kind selects a
// registered event constructor; the context fields feed its template.
type InjectRequest struct {
	Kind         string `json:"kind"`
	SlotID       string `json:"slot_id,omitempty"`
	DelayMinutes int    `json:"delay_minutes,omitempty"`
	Weather      string `json:"weather,omitempty"`
}

// HandleInject builds and enqueues a well-known event for a trip.
// POST /api/events/{tripID}
func (h *EventsHandler) HandleInject(w http.ResponseWriter, r *http.Request) {
	var req InjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := h.engine.InjectEvent(r.PathValue("tripID"), eventq.Kind(req.Kind), eventq.FactoryContext{
		SlotID:       req.SlotID,
		DelayMinutes: req.DelayMinutes,
		Weather:      req.Weather,
	})
	if err != nil {
		if errors.Is(err, session.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, ev)
}

// HandlePoll consumes pending events that clear the delivery pipeline.
// POST /api/events/{tripID}/poll?limit=N
func (h *EventsHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.engine.Poll(r.PathValue("tripID"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if events == nil {
		events = []eventq.Event{}
	}
	writeJSON(w, events)
}

// HandlePeek returns pending events in delivery order without consuming them.
// GET /api/events/{tripID}/peek
func (h *EventsHandler) HandlePeek(w http.ResponseWriter, r *http.Request) {
	events, err := h.engine.Peek(r.PathValue("tripID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if events == nil {
		events = []eventq.Event{}
	}
	writeJSON(w, events)
}

// HandleDismiss drops one pending event.
// POST /api/events/{tripID}/{eventID}/dismiss
func (h *EventsHandler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	ev, err := h.engine.DismissEvent(r.Context(), r.PathValue("tripID"), r.PathValue("eventID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, ev)
}

// ActionNoteRequest is the body for marking an event actioned.
type ActionNoteRequest struct {
	Note string `json:"note"`
}

// HandleAction marks one pending event actioned with a note.
// POST /api/events/{tripID}/{eventID}/action
func (h *EventsHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	var req ActionNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := h.engine.ActionEvent(r.Context(), r.PathValue("tripID"), r.PathValue("eventID"), req.Note)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, ev)
}
