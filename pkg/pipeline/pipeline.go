// Package pipeline is the stateless filter/enrichment stage between raw
// queued events and what is actually delivered. It reads session context but
// never mutates the queue; callers act on the verdicts.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"tripflow/pkg/eventq"
	"tripflow/pkg/model"
)

// Context is the session snapshot a batch is evaluated against. Fields may be
// partially populated; missing context never fails a batch.
type Context struct {
	Schedule       model.DaySchedule
	DayIndex       int
	Now            time.Time
	Location       *model.Coordinate
	CurrentVenueID string
	SlotStatuses   map[string]model.SlotStatus
	DelayMinutes   int
}

// Verdict is the pipeline's decision for one event.
type Verdict struct {
	Event  eventq.Event `json:"event"`
	Show   bool         `json:"show"`
	Reason string       `json:"reason,omitempty"` // set when suppressed
}

// Process evaluates a batch of candidate events. Failures are isolated per
// event: a panic while evaluating one event suppresses that event only.
func Process(events []eventq.Event, ctx Context) []Verdict {
	out := make([]Verdict, 0, len(events))
	for _, ev := range events {
		out = append(out, processOne(ev, ctx))
	}
	return out
}

func processOne(ev eventq.Event, ctx Context) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: event evaluation panicked", "event", ev.ID, "kind", ev.Kind, "panic", r)
			v = Verdict{Event: ev, Show: false, Reason: fmt.Sprintf("evaluation failed: %v", r)}
		}
	}()

	if !ctx.Now.IsZero() && ev.Expired(ctx.Now) {
		return Verdict{Event: ev, Show: false, Reason: "expired"}
	}
	if ev.DayIndex != ctx.DayIndex {
		return Verdict{Event: ev, Show: false, Reason: "different day"}
	}
	if reason := slotSuppression(ev, ctx); reason != "" {
		return Verdict{Event: ev, Show: false, Reason: reason}
	}

	return Verdict{Event: enrich(ev, ctx), Show: true}
}

// slotSuppression returns a non-empty reason when the event's slot state makes
// the event moot.
func slotSuppression(ev eventq.Event, ctx Context) string {
	if ev.SlotID == "" || ctx.SlotStatuses == nil {
		return ""
	}
	status, ok := ctx.SlotStatuses[ev.SlotID]
	if !ok {
		return ""
	}

	switch ev.Kind {
	case eventq.KindDelayWarning, eventq.KindClosureAlert, eventq.KindDepartureReminder, eventq.KindWeatherAlert:
		if status == model.SlotCompleted || status == model.SlotSkipped {
			return fmt.Sprintf("slot already %s", status)
		}
	case eventq.KindConfirmationRequest:
		if status != model.SlotInProgress {
			return fmt.Sprintf("slot is %s, not in progress", status)
		}
	}
	return ""
}

// enrich returns a copy of the event with contextual actions attached.
func enrich(ev eventq.Event, ctx Context) eventq.Event {
	out := ev
	out.Actions = append([]eventq.Action(nil), ev.Actions...)

	// Offer navigation only when we actually know where to go.
	if dest := destination(ev, ctx); dest != nil && !hasAction(out.Actions, "navigate") {
		out.Actions = append(out.Actions, eventq.Action{
			Type:  "navigate",
			Label: "Take me there",
			Payload: map[string]any{
				"lat": dest.Lat,
				"lon": dest.Lon,
			},
		})
	}

	// A briefing delivered to an already-late traveler gets a gentle nudge.
	if ev.Kind == eventq.KindMorningBriefing && ctx.DelayMinutes > 0 && out.Tip == "" {
		out.Tip = fmt.Sprintf("You are carrying %d minutes of delay from earlier.", ctx.DelayMinutes)
	}

	return out
}

func destination(ev eventq.Event, ctx Context) *model.Coordinate {
	if ev.SlotID == "" {
		return nil
	}
	slot, _, ok := ctx.Schedule.SlotByID(ev.SlotID)
	if !ok {
		return nil
	}
	return slot.Activity.Location
}

func hasAction(actions []eventq.Action, typ string) bool {
	for _, a := range actions {
		if a.Type == typ {
			return true
		}
	}
	return false
}
