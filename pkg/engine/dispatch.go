package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tripflow/internal/metrics"
	"tripflow/pkg/eventq"
	"tripflow/pkg/model"
	"tripflow/pkg/reshuffle"
	"tripflow/pkg/session"
)

// Action is one user (or simulator) command aimed at a trip. Type selects the
// operation; the remaining fields are read by the operations that need them.
type Action struct {
	Type     string            `json:"type"`
	SlotID   string            `json:"slot_id,omitempty"`
	EventID  string            `json:"event_id,omitempty"`
	Minutes  int               `json:"minutes,omitempty"`
	Factor   float64           `json:"factor,omitempty"`
	Time     time.Time         `json:"time,omitzero"`
	Location *model.Coordinate `json:"location,omitempty"`
	// Alternative is the substitute activity for swap.
	Alternative *model.Activity `json:"alternative,omitempty"`
	Message     string          `json:"message,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// Result is the outcome of a dispatched action.
type Result struct {
	Success    bool                  `json:"success"`
	Action     string                `json:"action"`
	Message    string                `json:"message,omitempty"`
	State      *session.State        `json:"state,omitempty"`
	Triggers   []reshuffle.Trigger   `json:"triggers,omitempty"`
	Suggestion *reshuffle.Suggestion `json:"suggestion,omitempty"`
}

// Dispatch routes an action by name. Session mutations that can change drift
// run a trigger check afterwards; fired triggers ride along in the result and
// are also queued as a proposal event.
func (e *Engine) Dispatch(ctx context.Context, tripID string, act Action) (Result, error) {
	res, err := e.dispatch(ctx, tripID, act)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ActionsDispatched.WithLabelValues(act.Type, outcome).Inc()
	return res, err
}

func (e *Engine) dispatch(ctx context.Context, tripID string, act Action) (Result, error) {
	switch act.Type {
	case "skip":
		st, changed, err := e.sessions.SkipSlot(tripID, act.SlotID)
		if err != nil {
			return Result{}, err
		}
		msg := fmt.Sprintf("Slot %s skipped.", act.SlotID)
		if !changed {
			msg = fmt.Sprintf("Slot %s was already skipped.", act.SlotID)
		}
		return e.mutated(tripID, act.Type, st, msg), nil

	case "complete":
		st, changed, err := e.sessions.CompleteSlot(tripID, act.SlotID)
		if err != nil {
			return Result{}, err
		}
		msg := fmt.Sprintf("Slot %s completed.", act.SlotID)
		if !changed {
			msg = fmt.Sprintf("Slot %s was already completed.", act.SlotID)
		}
		return e.mutated(tripID, act.Type, st, msg), nil

	case "start_activity":
		st, err := e.sessions.StartActivity(tripID, act.SlotID)
		if err != nil {
			return Result{}, err
		}
		return e.mutated(tripID, act.Type, st, fmt.Sprintf("Started %s.", act.SlotID)), nil

	case "extend":
		if act.Minutes <= 0 {
			return Result{}, fmt.Errorf("extend requires a positive minutes value")
		}
		st, err := e.sessions.ExtendSlot(tripID, act.SlotID, act.Minutes)
		if err != nil {
			return Result{}, err
		}
		return e.mutated(tripID, act.Type, st,
			fmt.Sprintf("Extended %s by %d minutes.", act.SlotID, act.Minutes)), nil

	case "add_delay":
		if act.Minutes <= 0 {
			return Result{}, fmt.Errorf("add_delay requires a positive minutes value")
		}
		st, err := e.sessions.AddDelay(tripID, act.Minutes)
		if err != nil {
			return Result{}, err
		}
		return e.mutated(tripID, act.Type, st,
			fmt.Sprintf("Recorded %d minutes of delay.", act.Minutes)), nil

	case "pause":
		st, err := e.sessions.SetPaused(tripID, true)
		if err != nil {
			return Result{}, err
		}
		return okResult(act.Type, st, "Clock paused."), nil

	case "resume":
		st, err := e.sessions.SetPaused(tripID, false)
		if err != nil {
			return Result{}, err
		}
		return okResult(act.Type, st, "Clock resumed."), nil

	case "set_time":
		if act.Time.IsZero() {
			return Result{}, fmt.Errorf("set_time requires a time value")
		}
		st, err := e.sessions.SetTime(tripID, act.Time)
		if err != nil {
			return Result{}, err
		}
		return e.mutated(tripID, act.Type, st,
			fmt.Sprintf("Clock set to %s.", act.Time.Format("15:04"))), nil

	case "set_speed":
		st, err := e.sessions.SetMultiplier(tripID, act.Factor)
		if err != nil {
			return Result{}, err
		}
		return okResult(act.Type, st, fmt.Sprintf("Clock speed set to %gx.", act.Factor)), nil

	case "set_location":
		if act.Location == nil {
			return Result{}, fmt.Errorf("set_location requires coordinates")
		}
		st, err := e.sessions.SetLocation(tripID, *act.Location)
		if err != nil {
			return Result{}, err
		}
		return e.mutated(tripID, act.Type, st, "Location updated."), nil

	case "confirm":
		if act.EventID == "" {
			return Result{}, fmt.Errorf("confirm requires an event id")
		}
		ev, err := e.ActionEvent(ctx, tripID, act.EventID, "confirmed")
		if err != nil {
			return Result{}, err
		}
		st, _ := e.sessions.Get(tripID)
		return okResult(act.Type, st, fmt.Sprintf("Confirmed: %s.", ev.Title)), nil

	case "dismiss":
		if act.EventID == "" {
			return Result{}, fmt.Errorf("dismiss requires an event id")
		}
		ev, err := e.DismissEvent(ctx, tripID, act.EventID)
		if err != nil {
			return Result{}, err
		}
		st, _ := e.sessions.Get(tripID)
		return okResult(act.Type, st, fmt.Sprintf("Dismissed: %s.", ev.Title)), nil

	case "navigate":
		// Navigation is client-side; we only record that the nudge landed.
		if act.EventID != "" {
			if _, err := e.ActionEvent(ctx, tripID, act.EventID, "navigate"); err != nil &&
				!errors.Is(err, eventq.ErrEventNotFound) {
				return Result{}, err
			}
		}
		st, ok := e.sessions.Get(tripID)
		if !ok {
			return Result{}, session.ErrNotInitialized
		}
		return okResult(act.Type, st, "Navigation started."), nil

	case "swap":
		if act.SlotID == "" || act.Alternative == nil {
			return Result{}, fmt.Errorf("swap requires a slot id and an alternative activity")
		}
		res, err := e.ApplyStrategy(ctx, tripID, reshuffle.Strategy{
			Kind:        reshuffle.StrategySwapActivity,
			SlotID:      act.SlotID,
			Alternative: act.Alternative,
		})
		if err != nil {
			return Result{}, err
		}
		st, _ := e.sessions.Get(tripID)
		if !res.Success {
			return Result{Action: act.Type, Message: res.Message, State: &st}, nil
		}
		return okResult(act.Type, st,
			fmt.Sprintf("Swapped %s for %s.", act.SlotID, act.Alternative.Name)), nil

	case "chat":
		return e.chat(tripID, act.Message)

	case "":
		return Result{}, fmt.Errorf("action type is required")

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, act.Type)
	}
}

// chat feeds a free-text complaint through intent matching and returns the
// best feasible strategy as a suggestion. Nothing is applied here.
func (e *Engine) chat(tripID, message string) (Result, error) {
	if strings.TrimSpace(message) == "" {
		return Result{}, fmt.Errorf("chat requires a message")
	}
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return Result{}, session.ErrNotInitialized
	}

	sug, err := e.replan.Suggest(tripID, message, st.Schedule, checkRequest(st, message, ""))
	if err != nil {
		return Result{
			Success: false,
			Action:  "chat",
			State:   &st,
			Message: "I couldn't find a workable adjustment for that. The plan stays as is.",
		}, nil
	}
	slog.Debug("Chat suggestion", "trip", tripID, "strategy", sug.Strategy.Kind)
	return Result{
		Success:    true,
		Action:     "chat",
		State:      &st,
		Message:    sug.Explanation,
		Suggestion: &sug,
	}, nil
}

func (e *Engine) mutated(tripID, action string, st session.State, msg string) Result {
	triggers := e.runTriggerCheck(st)
	return Result{
		Success:  true,
		Action:   action,
		Message:  msg,
		State:    &st,
		Triggers: triggers,
	}
}

func okResult(action string, st session.State, msg string) Result {
	return Result{Success: true, Action: action, Message: msg, State: &st}
}
