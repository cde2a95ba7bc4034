package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tripflow/pkg/engine"
	"tripflow/pkg/reshuffle"
	"tripflow/pkg/session"
)

// ReplanHandler exposes trigger checks, strategy application and undo.
type ReplanHandler struct {
	engine *engine.Engine
}

// NewReplanHandler creates a new ReplanHandler.
func NewReplanHandler(eng *engine.Engine) *ReplanHandler {
	return &ReplanHandler{engine: eng}
}

// HandleCheck runs the trigger detector against the trip's current state.
// GET /api/replan/{tripID}/check
func (h *ReplanHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	triggers, err := h.engine.CheckTriggers(r.PathValue("tripID"), q.Get("issue"), q.Get("state"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if triggers == nil {
		triggers = []reshuffle.Trigger{}
	}
	writeJSON(w, map[string]any{
		"triggers": triggers,
		"phase":    h.engine.ReshufflePhase(r.PathValue("tripID")),
	})
}

// ApplyRequest is the body for POST /api/replan/{tripID}/apply.
type ApplyRequest struct {
	Strategy reshuffle.Strategy `json:"strategy"`
}

// HandleApply applies a strategy to the trip's live schedule. Inapplicable
// strategies come back as success=false with the schedule untouched.
// POST /api/replan/{tripID}/apply
func (h *ReplanHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.ApplyStrategy(r.Context(), r.PathValue("tripID"), req.Strategy)
	if err != nil {
		if errors.Is(err, session.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, res)
}

// UndoRequest is the body for POST /api/replan/{tripID}/undo.
type UndoRequest struct {
	Token string `json:"token"`
}

// HandleUndo restores the snapshot behind an undo token.
// POST /api/replan/{tripID}/undo
func (h *ReplanHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.UndoReshuffle(r.Context(), r.PathValue("tripID"), req.Token)
	if err != nil {
		if errors.Is(err, session.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, res)
}

// SuggestRequest is the body for POST /api/replan/{tripID}/suggest.
type SuggestRequest struct {
	Message string `json:"message"`
}

// HandleSuggest maps a free-text complaint to the best feasible strategy.
// POST /api/replan/{tripID}/suggest
func (h *ReplanHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Dispatch(r.Context(), r.PathValue("tripID"), engine.Action{
		Type:    "chat",
		Message: req.Message,
	})
	if err != nil {
		if errors.Is(err, session.ErrNotInitialized) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, res)
}
