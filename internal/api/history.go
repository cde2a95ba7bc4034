package api

import (
	"net/http"
	"strconv"

	"tripflow/pkg/store"
)

// HistoryHandler serves the persisted audit trail.
type HistoryHandler struct {
	store store.AuditStore
}

// NewHistoryHandler creates a new HistoryHandler. Returns nil when no audit
// store is configured; the routes are then not registered.
func NewHistoryHandler(st store.AuditStore) *HistoryHandler {
	if st == nil {
		return nil
	}
	return &HistoryHandler{store: st}
}

// HandleHistory returns the most recent audit records for a trip.
// GET /api/history/{tripID}?limit=N
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripID")
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.store.RecentEventActions(r.Context(), tripID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	reshuffles, err := h.store.RecentReshuffles(r.Context(), tripID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if events == nil {
		events = []store.EventActionRecord{}
	}
	if reshuffles == nil {
		reshuffles = []store.ReshuffleRecord{}
	}
	writeJSON(w, map[string]any{
		"event_actions": events,
		"reshuffles":    reshuffles,
	})
}
