// Package engine is the coordination layer: it owns the session manager, the
// per-trip event queues, the delivery pipeline and the reshuffle service, and
// exposes the operations the API surface calls.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tripflow/internal/metrics"
	"tripflow/pkg/config"
	"tripflow/pkg/eventq"
	"tripflow/pkg/logging"
	"tripflow/pkg/model"
	"tripflow/pkg/pipeline"
	"tripflow/pkg/reshuffle"
	"tripflow/pkg/session"
	"tripflow/pkg/store"
)

// Engine wires the subsystems together behind one facade.
type Engine struct {
	sessions *session.Manager
	queue    *eventq.Queue
	replan   *reshuffle.Service
	audit    store.AuditStore // nil disables the audit trail
	cfg      config.EngineConfig
}

// New builds an engine from config. audit may be nil.
func New(cfg config.EngineConfig, audit store.AuditStore) *Engine {
	return newEngine(cfg, audit, session.NewManager())
}

// NewWithSource is New with an injectable wall source, for tests.
func NewWithSource(cfg config.EngineConfig, audit store.AuditStore, now func() time.Time) *Engine {
	return newEngine(cfg, audit, session.NewManagerWithSource(now))
}

func newEngine(cfg config.EngineConfig, audit store.AuditStore, mgr *session.Manager) *Engine {
	return &Engine{
		sessions: mgr,
		queue:    eventq.NewQueue(cfg.QueueCap),
		replan: reshuffle.NewService(reshuffle.Config{
			DelayThreshold:   cfg.TriggerDelayThreshold.Std(),
			CompressionFloor: cfg.CompressionFloor.Std(),
			LocationRadiusKm: cfg.LocationMismatchRadiusKm,
			UndoDepth:        cfg.UndoHistoryDepth,
		}),
		audit: audit,
		cfg:   cfg,
	}
}

// InitSession starts (or restarts) a day session and seeds the queue with a
// morning briefing.
func (e *Engine) InitSession(tripID string, sched model.DaySchedule, dayIndex int, start time.Time) (session.State, error) {
	st, err := e.sessions.Init(tripID, sched, dayIndex, start)
	if err != nil {
		return session.State{}, err
	}
	metrics.ActiveTrips.Set(float64(len(e.sessions.ActiveTrips())))

	briefing, err := eventq.Build(eventq.KindMorningBriefing, eventq.FactoryContext{
		TripID:        tripID,
		DayIndex:      st.DayIndex,
		City:          st.Schedule.City,
		ActivityNames: st.Schedule.ActivityNames(),
		Now:           st.CurrentTime,
		DefaultTTL:    e.cfg.DefaultEventTTL.Std(),
	})
	if err == nil {
		e.queue.Enqueue(tripID, briefing, st.CurrentTime)
		metrics.EventsEnqueued.WithLabelValues(string(briefing.Kind)).Inc()
	}

	slog.Info("Session started", "trip", tripID, "day", dayIndex, "slots", len(st.Schedule.Slots))
	return st, nil
}

// State returns the current snapshot for a trip.
func (e *Engine) State(tripID string) (session.State, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return session.State{}, session.ErrNotInitialized
	}
	return st, nil
}

// ActiveTrips lists trips with a live session.
func (e *Engine) ActiveTrips() []string {
	return e.sessions.ActiveTrips()
}

// EndSession tears down a session, drops its pending events and invalidates
// every outstanding undo token.
func (e *Engine) EndSession(tripID string) (session.FinalCounters, error) {
	counters, err := e.sessions.End(tripID)
	if err != nil {
		return session.FinalCounters{}, err
	}
	e.queue.Drop(tripID)
	e.replan.DropTrip(tripID)
	metrics.ActiveTrips.Set(float64(len(e.sessions.ActiveTrips())))
	slog.Info("Session ended", "trip", tripID,
		"completed", counters.CompletedCount, "skipped", counters.SkippedCount)
	return counters, nil
}

// InjectEvent builds a well-known event for the trip and enqueues it. Unknown
// kinds are rejected by the factory.
func (e *Engine) InjectEvent(tripID string, kind eventq.Kind, fctx eventq.FactoryContext) (eventq.Event, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return eventq.Event{}, session.ErrNotInitialized
	}
	fctx.TripID = tripID
	fctx.DayIndex = st.DayIndex
	if fctx.City == "" {
		fctx.City = st.Schedule.City
	}
	fctx.Now = st.CurrentTime
	if fctx.DefaultTTL == 0 {
		fctx.DefaultTTL = e.cfg.DefaultEventTTL.Std()
	}
	if fctx.SlotID != "" && fctx.SlotName == "" {
		if slot, _, ok := st.Schedule.SlotByID(fctx.SlotID); ok {
			fctx.SlotName = slot.Activity.Name
		}
	}

	ev, err := eventq.Build(kind, fctx)
	if err != nil {
		return eventq.Event{}, err
	}
	stored := e.queue.Enqueue(tripID, ev, st.CurrentTime)
	metrics.EventsEnqueued.WithLabelValues(string(kind)).Inc()
	return stored, nil
}

// Poll consumes up to limit pending events for the trip and returns the ones
// the pipeline cleared for delivery. Suppressed events are consumed too; each
// delivery is at-most-once.
func (e *Engine) Poll(tripID string, limit int) ([]eventq.Event, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return nil, session.ErrNotInitialized
	}
	if limit <= 0 || limit > e.cfg.PollLimitMax {
		limit = e.cfg.PollLimitMax
	}

	batch := e.queue.Poll(tripID, limit, st.CurrentTime)
	verdicts := pipeline.Process(batch, pipelineContext(st))

	out := make([]eventq.Event, 0, len(verdicts))
	for _, v := range verdicts {
		if !v.Show {
			metrics.EventsSuppressed.WithLabelValues(v.Reason).Inc()
			continue
		}
		metrics.EventsDelivered.WithLabelValues(string(v.Event.Kind)).Inc()
		logging.LogDelivery(tripID, v.Event.ID, string(v.Event.Kind), v.Event.Title)
		out = append(out, v.Event)
	}
	return out, nil
}

// Peek returns the pending events in delivery order without consuming them.
// The batch passes through the same pipeline as Poll, so a peek never shows
// an event the next poll would suppress. Suppressed events stay queued and
// are not counted; Poll settles them.
func (e *Engine) Peek(tripID string) ([]eventq.Event, error) {
	st, ok := e.sessions.Get(tripID)
	if !ok {
		return nil, session.ErrNotInitialized
	}
	verdicts := pipeline.Process(e.queue.Peek(tripID, st.CurrentTime), pipelineContext(st))
	out := make([]eventq.Event, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Show {
			out = append(out, v.Event)
		}
	}
	return out, nil
}

// DismissEvent marks a pending event dismissed and records the decision.
func (e *Engine) DismissEvent(ctx context.Context, tripID, eventID string) (eventq.Event, error) {
	ev, err := e.queue.Dismiss(tripID, eventID)
	if err != nil {
		return eventq.Event{}, err
	}
	e.recordEventAction(ctx, tripID, ev)
	return ev, nil
}

// ActionEvent marks a pending event actioned with a note and records it.
func (e *Engine) ActionEvent(ctx context.Context, tripID, eventID, note string) (eventq.Event, error) {
	ev, err := e.queue.MarkActioned(tripID, eventID, note)
	if err != nil {
		return eventq.Event{}, err
	}
	e.recordEventAction(ctx, tripID, ev)
	return ev, nil
}

// QueueLen reports the number of pending events for a trip.
func (e *Engine) QueueLen(tripID string) int {
	return e.queue.Len(tripID)
}

func (e *Engine) recordEventAction(ctx context.Context, tripID string, ev eventq.Event) {
	if e.audit == nil {
		return
	}
	err := e.audit.RecordEventAction(ctx, store.EventActionRecord{
		TripID:  tripID,
		EventID: ev.ID,
		Kind:    string(ev.Kind),
		Title:   ev.Title,
		Status:  string(ev.Status),
		Note:    ev.Note,
	})
	if err != nil {
		slog.Warn("Audit write failed", "trip", tripID, "event", ev.ID, "error", err)
	}
}

func (e *Engine) recordReshuffle(ctx context.Context, rec store.ReshuffleRecord) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordReshuffle(ctx, rec); err != nil {
		slog.Warn("Audit write failed", "trip", rec.TripID, "action", rec.Action, "error", err)
	}
}

func pipelineContext(st session.State) pipeline.Context {
	return pipeline.Context{
		Schedule:       st.Schedule,
		DayIndex:       st.DayIndex,
		Now:            st.CurrentTime,
		Location:       st.CurrentLocation,
		CurrentVenueID: st.CurrentVenueID,
		SlotStatuses:   st.SlotStatuses,
		DelayMinutes:   st.DelayMinutes,
	}
}

func checkRequest(st session.State, issue, userState string) reshuffle.CheckRequest {
	return reshuffle.CheckRequest{
		TripID:            st.TripID,
		Now:               st.CurrentTime,
		DelayMinutes:      st.DelayMinutes,
		UserReportedIssue: issue,
		UserState:         userState,
		Location:          st.CurrentLocation,
		CurrentVenueID:    st.CurrentVenueID,
	}
}

// proposalEvent packages detected triggers as a queued event so clients learn
// about them on their next poll.
func proposalEvent(st session.State, trig reshuffle.Trigger) eventq.Event {
	actions := make([]eventq.Action, 0, len(trig.Strategies))
	for _, s := range trig.Strategies {
		actions = append(actions, eventq.Action{
			Type:  "apply_strategy",
			Label: s.Impact,
			Payload: map[string]any{
				"kind":    string(s.Kind),
				"slot_id": s.SlotID,
			},
		})
	}
	return eventq.Event{
		Kind:     eventq.KindReshuffleProposal,
		Source:   eventq.SourceDetector,
		Priority: eventq.PriorityHigh,
		DayIndex: st.DayIndex,
		Title:    "Plan adjustment suggested",
		Message:  trig.Message,
		Actions:  actions,
	}
}

// runTriggerCheck is called after any session mutation that can change drift.
// Fired triggers are surfaced as a reshuffle proposal event.
func (e *Engine) runTriggerCheck(st session.State) []reshuffle.Trigger {
	triggers := e.replan.Check(checkRequest(st, "", ""), st.Schedule)
	for _, trig := range triggers {
		ev := e.queue.Enqueue(st.TripID, proposalEvent(st, trig), st.CurrentTime)
		metrics.EventsEnqueued.WithLabelValues(string(ev.Kind)).Inc()
	}
	return triggers
}

// ErrUnknownAction is wrapped around dispatches naming no registered action.
var ErrUnknownAction = fmt.Errorf("unknown action")
