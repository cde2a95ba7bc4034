package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripflow/pkg/config"
	"tripflow/pkg/eventq"
	"tripflow/pkg/model"
	"tripflow/pkg/reshuffle"
)

var dayStart = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		TriggerDelayThreshold:    config.Duration(20 * time.Minute),
		CompressionFloor:         config.Duration(30 * time.Minute),
		LocationMismatchRadiusKm: 2.0,
		UndoHistoryDepth:         5,
		QueueCap:                 64,
		DefaultEventTTL:          config.Duration(2 * time.Hour),
		PollLimitMax:             20,
	}
}

func daySchedule() model.DaySchedule {
	at := func(h, m int) time.Time {
		return time.Date(2026, 5, 4, h, m, 0, 0, time.UTC)
	}
	return model.DaySchedule{
		TripID:   "lisbon-1",
		DayIndex: 0,
		City:     "Lisbon",
		Slots: []model.Slot{
			{ID: "s1", Activity: model.Activity{ID: "a1", Name: "Castle"}, Start: at(9, 0), End: at(11, 0), Rigidity: 0.3},
			{ID: "s2", Activity: model.Activity{ID: "a2", Name: "Time Out Market", Location: &model.Coordinate{Lat: 38.7071, Lon: -9.1355}}, Start: at(11, 30), End: at(13, 0), Rigidity: 0.5},
			{ID: "s3", Activity: model.Activity{ID: "a3", Name: "Tram 28"}, Start: at(14, 0), End: at(16, 0), Rigidity: 0.2},
			{ID: "s4", Activity: model.Activity{ID: "a4", Name: "Miradouro"}, Start: at(16, 30), End: at(18, 0), Rigidity: 0.1},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	wall := dayStart
	return NewWithSource(testConfig(), nil, func() time.Time { return wall })
}

func initTrip(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.InitSession("lisbon-1", daySchedule(), 0, dayStart)
	require.NoError(t, err)
}

func TestInitSeedsMorningBriefing(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)

	events, err := e.Poll("lisbon-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventq.KindMorningBriefing, events[0].Kind)
	assert.Contains(t, events[0].Message, "Lisbon")
	assert.Contains(t, events[0].Message, "Castle")

	// Poll consumes: second poll is empty.
	events, err = e.Poll("lisbon-1", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPollWithoutSession(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Poll("ghost", 5)
	assert.Error(t, err)
}

func TestDispatchUnknownAction(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)

	_, err := e.Dispatch(context.Background(), "lisbon-1", Action{Type: "teleport"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDispatchSkipAndComplete(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	res, err := e.Dispatch(ctx, "lisbon-1", Action{Type: "skip", SlotID: "s1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.SlotSkipped, res.State.SlotStatuses["s1"])
	assert.Equal(t, 1, res.State.SkippedCount)

	res, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "complete", SlotID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CompletedCount)

	// Idempotent repeat does not double count.
	res, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "complete", SlotID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.CompletedCount)
}

func TestDelayBelowThresholdNoTrigger(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)

	res, err := e.Dispatch(context.Background(), "lisbon-1", Action{Type: "add_delay", Minutes: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Triggers)
}

func TestDelayBeyondThresholdFiresTrigger(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	res, err := e.Dispatch(ctx, "lisbon-1", Action{Type: "add_delay", Minutes: 25})
	require.NoError(t, err)
	require.NotEmpty(t, res.Triggers)
	trig := res.Triggers[0]
	assert.Equal(t, reshuffle.TriggerDelay, trig.Kind)
	require.NotEmpty(t, trig.Strategies)
	assert.Equal(t, reshuffle.StrategyCompressRemaining, trig.Strategies[0].Kind)

	// The proposal also lands in the queue behind the briefing.
	events, err := e.Poll("lisbon-1", 10)
	require.NoError(t, err)
	kinds := make([]eventq.Kind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, eventq.KindReshuffleProposal)
}

func TestApplyAndUndoRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	_, err := e.Dispatch(ctx, "lisbon-1", Action{Type: "add_delay", Minutes: 25})
	require.NoError(t, err)

	triggers, err := e.CheckTriggers("lisbon-1", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, triggers)

	before, err := e.State("lisbon-1")
	require.NoError(t, err)

	res, err := e.ApplyStrategy(ctx, "lisbon-1", triggers[0].Strategies[0])
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.UndoToken)

	after, err := e.State("lisbon-1")
	require.NoError(t, err)
	assert.NotEqual(t, before.Schedule.Slots, after.Schedule.Slots)
	// Day end is preserved by compression.
	assert.Equal(t, before.Schedule.Slots[3].End, after.Schedule.Slots[3].End)

	undo, err := e.UndoReshuffle(ctx, "lisbon-1", res.UndoToken)
	require.NoError(t, err)
	require.True(t, undo.Success)

	restored, err := e.State("lisbon-1")
	require.NoError(t, err)
	assert.Equal(t, before.Schedule.Slots, restored.Schedule.Slots)

	// Token is single use.
	undo, err = e.UndoReshuffle(ctx, "lisbon-1", res.UndoToken)
	require.NoError(t, err)
	assert.False(t, undo.Success)
	assert.Equal(t, reshuffle.FailTokenConsumed, undo.Code)
}

func TestApplyInapplicableLeavesScheduleAlone(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	before, err := e.State("lisbon-1")
	require.NoError(t, err)

	res, err := e.ApplyStrategy(ctx, "lisbon-1", reshuffle.Strategy{
		Kind:   reshuffle.StrategySwapActivity,
		SlotID: "s2",
		// No alternative: swap cannot run.
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, reshuffle.FailStrategyInapplicable, res.Code)

	after, err := e.State("lisbon-1")
	require.NoError(t, err)
	assert.Equal(t, before.Schedule.Slots, after.Schedule.Slots)
}

func TestChatSuggestsButDoesNotApply(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	before, err := e.State("lisbon-1")
	require.NoError(t, err)

	res, err := e.Dispatch(ctx, "lisbon-1", Action{Type: "chat", Message: "we're running really late"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Suggestion)
	assert.Equal(t, reshuffle.StrategyCompressRemaining, res.Suggestion.Strategy.Kind)

	after, err := e.State("lisbon-1")
	require.NoError(t, err)
	assert.Equal(t, before.Schedule.Slots, after.Schedule.Slots)
}

func TestInjectEventRejectsUnknownKind(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)

	_, err := e.InjectEvent("lisbon-1", eventq.Kind("alien_invasion"), eventq.FactoryContext{})
	assert.Error(t, err)
}

func TestInjectAndActionEvent(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	ev, err := e.InjectEvent("lisbon-1", eventq.KindWeatherAlert, eventq.FactoryContext{
		Weather: "heavy rain",
		SlotID:  "s3",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ev.ID)

	actioned, err := e.ActionEvent(ctx, "lisbon-1", ev.ID, "swap")
	require.NoError(t, err)
	assert.Equal(t, eventq.StatusActioned, actioned.Status)
	assert.Equal(t, "swap", actioned.Note)
}

func TestEndSessionInvalidatesTokens(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	_, err := e.Dispatch(ctx, "lisbon-1", Action{Type: "add_delay", Minutes: 30})
	require.NoError(t, err)
	triggers, err := e.CheckTriggers("lisbon-1", "", "")
	require.NoError(t, err)
	require.NotEmpty(t, triggers)
	res, err := e.ApplyStrategy(ctx, "lisbon-1", triggers[0].Strategies[0])
	require.NoError(t, err)
	require.True(t, res.Success)

	counters, err := e.EndSession("lisbon-1")
	require.NoError(t, err)
	assert.Equal(t, 30, counters.DelayMinutes)
	assert.Empty(t, e.ActiveTrips())

	// Session gone, undo is refused outright.
	_, err = e.UndoReshuffle(ctx, "lisbon-1", res.UndoToken)
	assert.Error(t, err)
}

func TestClockControls(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	res, err := e.Dispatch(ctx, "lisbon-1", Action{Type: "pause"})
	require.NoError(t, err)
	assert.True(t, res.State.Paused)

	res, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "set_speed", Factor: 60})
	require.NoError(t, err)
	assert.Equal(t, float64(60), res.State.TimeMultiplier)

	target := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	res, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "set_time", Time: target})
	require.NoError(t, err)
	assert.Equal(t, target, res.State.CurrentTime)

	_, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "set_speed", Factor: -1})
	assert.Error(t, err)
}

func TestInjectEventResolvesSlotName(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)

	ev, err := e.InjectEvent("lisbon-1", eventq.KindClosureAlert, eventq.FactoryContext{SlotID: "s2"})
	require.NoError(t, err)
	assert.Contains(t, ev.Message, "Time Out Market")

	// Unknown slot falls back to the generic phrasing instead of failing.
	ev, err = e.InjectEvent("lisbon-1", eventq.KindClosureAlert, eventq.FactoryContext{SlotID: "nope"})
	require.NoError(t, err)
	assert.Contains(t, ev.Message, "Your next stop")
}

func TestDispatchSwapAction(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	res, err := e.Dispatch(ctx, "lisbon-1", Action{
		Type:        "swap",
		SlotID:      "s3",
		Alternative: &model.Activity{ID: "a9", Name: "Fado Museum"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	slot, _, ok := res.State.Schedule.SlotByID("s3")
	require.True(t, ok)
	assert.Equal(t, "Fado Museum", slot.Activity.Name)

	// Missing slot is a structured failure, not an error.
	res, err = e.Dispatch(ctx, "lisbon-1", Action{
		Type:        "swap",
		SlotID:      "nope",
		Alternative: &model.Activity{ID: "a9", Name: "Fado Museum"},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)

	// No alternative to swap in is a caller mistake.
	_, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "swap", SlotID: "s3"})
	assert.Error(t, err)
}

func TestPeekMatchesPollSuppression(t *testing.T) {
	e := newTestEngine(t)
	initTrip(t, e)
	ctx := context.Background()

	_, err := e.Poll("lisbon-1", 10) // drain the briefing
	require.NoError(t, err)

	_, err = e.InjectEvent("lisbon-1", eventq.KindClosureAlert, eventq.FactoryContext{SlotID: "s3"})
	require.NoError(t, err)

	peeked, err := e.Peek("lisbon-1")
	require.NoError(t, err)
	require.Len(t, peeked, 1)

	_, err = e.Dispatch(ctx, "lisbon-1", Action{Type: "complete", SlotID: "s3"})
	require.NoError(t, err)

	// The alert stays queued but is no longer visible on either path.
	peeked, err = e.Peek("lisbon-1")
	require.NoError(t, err)
	assert.Empty(t, peeked)
	assert.Equal(t, 1, e.QueueLen("lisbon-1"))

	polled, err := e.Poll("lisbon-1", 10)
	require.NoError(t, err)
	assert.Empty(t, polled)
	assert.Equal(t, 0, e.QueueLen("lisbon-1"))
}
