package engine

import (
	"context"

	"tripflow/internal/metrics"
	"tripflow/pkg/reshuffle"
	"tripflow/pkg/session"
	"tripflow/pkg/store"
)

// CheckTriggers runs the detector against the trip's current state and
// returns any fired triggers with their ranked strategies.
func (e *Engine) CheckTriggers(tripID, issue, userState string) ([]reshuffle.Trigger, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return nil, session.ErrNotInitialized
	}
	return e.replan.Check(checkRequest(st, issue, userState), st.Schedule), nil
}

// ApplyStrategy runs a strategy against the trip's live schedule. On success
// the session's schedule is swapped to the updated one and an undo token
// returned; an inapplicable strategy leaves the schedule untouched.
func (e *Engine) ApplyStrategy(ctx context.Context, tripID string, strat reshuffle.Strategy) (reshuffle.ApplyResult, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return reshuffle.ApplyResult{}, session.ErrNotInitialized
	}

	res, err := e.replan.Apply(reshuffle.ApplyRequest{
		TripID:   tripID,
		Strategy: strat,
		Schedule: st.Schedule,
		Now:      st.CurrentTime,
	})
	if err != nil {
		return reshuffle.ApplyResult{}, err
	}

	outcome := "applied"
	if res.Success {
		if _, err := e.sessions.UpdateSchedule(tripID, res.UpdatedSchedule); err != nil {
			return reshuffle.ApplyResult{}, err
		}
	} else {
		outcome = "inapplicable"
	}
	metrics.ReshufflesApplied.WithLabelValues(string(strat.Kind), outcome).Inc()
	e.recordReshuffle(ctx, store.ReshuffleRecord{
		TripID:    tripID,
		DayIndex:  st.DayIndex,
		Action:    "apply",
		Strategy:  string(strat.Kind),
		Success:   res.Success,
		UndoToken: res.UndoToken,
		Message:   res.Message,
	})
	return res, nil
}

// UndoReshuffle restores the snapshot behind a token and swaps the session's
// schedule back. Each token works exactly once.
func (e *Engine) UndoReshuffle(ctx context.Context, tripID, token string) (reshuffle.UndoResult, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return reshuffle.UndoResult{}, session.ErrNotInitialized
	}

	res, err := e.replan.Undo(tripID, token)
	if err != nil {
		return reshuffle.UndoResult{}, err
	}

	outcome := string(res.Code)
	if res.Success {
		outcome = "undone"
		if _, err := e.sessions.UpdateSchedule(tripID, res.RestoredSchedule); err != nil {
			return reshuffle.UndoResult{}, err
		}
	}
	metrics.ReshufflesUndone.WithLabelValues(outcome).Inc()
	e.recordReshuffle(ctx, store.ReshuffleRecord{
		TripID:    tripID,
		DayIndex:  st.DayIndex,
		Action:    "undo",
		Success:   res.Success,
		UndoToken: token,
		Message:   res.Message,
	})
	return res, nil
}

// ReshufflePhase reports where the trip sits in the propose/apply/undo cycle.
func (e *Engine) ReshufflePhase(tripID string) reshuffle.Phase {
	return e.replan.Phase(tripID)
}

// DismissProposal drops an outstanding proposal without applying anything.
func (e *Engine) DismissProposal(tripID string) {
	e.replan.Dismiss(tripID)
}
