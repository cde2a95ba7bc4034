package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tripflow/pkg/engine"
	"tripflow/pkg/session"
)

// ActionHandler routes user and simulator commands into the engine.
type ActionHandler struct {
	engine *engine.Engine
}

// NewActionHandler creates a new ActionHandler.
func NewActionHandler(eng *engine.Engine) *ActionHandler {
	return &ActionHandler{engine: eng}
}

// HandleDispatch decodes one action and dispatches it by name.
// POST /api/action/{tripID}
func (h *ActionHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var act engine.Action
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Dispatch(r.Context(), r.PathValue("tripID"), act)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotInitialized):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, engine.ErrUnknownAction), errors.Is(err, session.ErrSlotNotFound):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	writeJSON(w, res)
}
