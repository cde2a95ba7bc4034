package eventq

import (
	"fmt"
	"strings"
	"time"
)

// FactoryContext carries the session context a constructor may draw on.
// Constructors tolerate missing optional fields.
type FactoryContext struct {
	TripID        string
	DayIndex      int
	City          string
	ActivityNames []string
	SlotID        string
	SlotName      string
	DelayMinutes  int
	Weather       string
	Now           time.Time
	// DefaultTTL is applied by constructors that produce perishable events.
	DefaultTTL time.Duration
}

type constructor func(FactoryContext) Event

// registry is the closed mapping of kinds to constructors. Adding a new
// well-known event variant means adding one entry here.
var registry = map[Kind]constructor{
	KindMorningBriefing:     newMorningBriefing,
	KindDelayWarning:        newDelayWarning,
	KindClosureAlert:        newClosureAlert,
	KindWeatherAlert:        newWeatherAlert,
	KindConfirmationRequest: newConfirmationRequest,
	KindDepartureReminder:   newDepartureReminder,
}

// Build constructs a well-known event variant from session context.
// Unknown kinds are rejected rather than producing an empty event.
func Build(kind Kind, ctx FactoryContext) (Event, error) {
	c, ok := registry[kind]
	if !ok {
		return Event{}, fmt.Errorf("unknown event kind: %q", kind)
	}
	return c(ctx), nil
}

// KnownKinds returns the kinds the factory can build, for boundary validation.
func KnownKinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

func newMorningBriefing(ctx FactoryContext) Event {
	msg := fmt.Sprintf("Day %d", ctx.DayIndex+1)
	if ctx.City != "" {
		msg += " in " + ctx.City
	}
	if len(ctx.ActivityNames) > 0 {
		msg += ": " + strings.Join(ctx.ActivityNames, ", ")
	}
	return Event{
		Kind:     KindMorningBriefing,
		Source:   SourceSimulator,
		Priority: PriorityNormal,
		DayIndex: ctx.DayIndex,
		Title:    "Good morning!",
		Message:  msg,
		Tip:      "Check opening hours before you head out.",
	}
}

func newDelayWarning(ctx FactoryContext) Event {
	ev := Event{
		Kind:     KindDelayWarning,
		Source:   SourceDetector,
		Priority: PriorityHigh,
		DayIndex: ctx.DayIndex,
		SlotID:   ctx.SlotID,
		Title:    "Running behind schedule",
		Message:  fmt.Sprintf("You are about %d minutes behind plan.", ctx.DelayMinutes),
		Tip:      "A quick reshuffle can recover most of the day.",
		Actions: []Action{
			{Type: "reshuffle", Label: "Fix my day"},
			{Type: "dismiss", Label: "Ignore"},
		},
	}
	if ctx.DefaultTTL > 0 {
		ev.ExpiresAt = ctx.Now.Add(ctx.DefaultTTL)
	}
	return ev
}

func newClosureAlert(ctx FactoryContext) Event {
	name := ctx.SlotName
	if name == "" {
		name = "Your next stop"
	}
	return Event{
		Kind:     KindClosureAlert,
		Source:   SourceSensor,
		Priority: PriorityUrgent,
		DayIndex: ctx.DayIndex,
		SlotID:   ctx.SlotID,
		Title:    "Venue closed",
		Message:  fmt.Sprintf("%s appears to be closed right now.", name),
		Actions: []Action{
			{Type: "swap", Label: "Find an alternative", Payload: map[string]any{"slot_id": ctx.SlotID}},
			{Type: "skip", Label: "Skip it", Payload: map[string]any{"slot_id": ctx.SlotID}},
		},
	}
}

func newWeatherAlert(ctx FactoryContext) Event {
	cond := ctx.Weather
	if cond == "" {
		cond = "bad weather"
	}
	ev := Event{
		Kind:     KindWeatherAlert,
		Source:   SourceSensor,
		Priority: PriorityHigh,
		DayIndex: ctx.DayIndex,
		SlotID:   ctx.SlotID,
		Title:    "Weather heads-up",
		Message:  fmt.Sprintf("Expect %s around your planned time.", cond),
		Tip:      "Indoor alternatives keep the day on track.",
	}
	if ctx.DefaultTTL > 0 {
		ev.ExpiresAt = ctx.Now.Add(ctx.DefaultTTL)
	}
	return ev
}

func newConfirmationRequest(ctx FactoryContext) Event {
	name := ctx.SlotName
	if name == "" {
		name = "your current activity"
	}
	return Event{
		Kind:     KindConfirmationRequest,
		Source:   SourceSimulator,
		Priority: PriorityNormal,
		DayIndex: ctx.DayIndex,
		SlotID:   ctx.SlotID,
		Title:    "How is it going?",
		Message:  fmt.Sprintf("Are you still at %s?", name),
		Actions: []Action{
			{Type: "confirm", Label: "Yes, all good"},
			{Type: "complete", Label: "Done, moving on", Payload: map[string]any{"slot_id": ctx.SlotID}},
		},
	}
}

func newDepartureReminder(ctx FactoryContext) Event {
	name := ctx.SlotName
	if name == "" {
		name = "your next activity"
	}
	ev := Event{
		Kind:     KindDepartureReminder,
		Source:   SourceSimulator,
		Priority: PriorityHigh,
		DayIndex: ctx.DayIndex,
		SlotID:   ctx.SlotID,
		Title:    "Time to go",
		Message:  fmt.Sprintf("Leave soon to make it to %s on time.", name),
	}
	if ctx.DefaultTTL > 0 {
		ev.ExpiresAt = ctx.Now.Add(ctx.DefaultTTL)
	}
	return ev
}
