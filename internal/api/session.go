package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tripflow/pkg/engine"
	"tripflow/pkg/model"
	"tripflow/pkg/session"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	engine *engine.Engine
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(eng *engine.Engine) *SessionHandler {
	return &SessionHandler{engine: eng}
}

// InitRequest is the body for POST /api/session/init.
type InitRequest struct {
	TripID   string            `json:"trip_id"`
	DayIndex int               `json:"day_index"`
	Schedule model.DaySchedule `json:"schedule"`
	Start    time.Time         `json:"start,omitzero"`
}

// HandleInit starts (or restarts) a day session.
// POST /api/session/init
func (h *SessionHandler) HandleInit(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := h.engine.InitSession(req.TripID, req.Schedule, req.DayIndex, req.Start)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, st)
}

// HandleGet returns the current snapshot for one trip.
// GET /api/session/{tripID}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.State(r.PathValue("tripID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

// HandleList returns the trip ids with an active session.
// GET /api/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	trips := h.engine.ActiveTrips()
	if trips == nil {
		trips = []string{}
	}
	writeJSON(w, map[string]any{"trips": trips})
}

// HandleEnd tears a session down and returns its final counters.
// POST /api/session/{tripID}/end
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	counters, err := h.engine.EndSession(r.PathValue("tripID"))
	if err != nil {
		if errors.Is(err, session.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, counters)
}
