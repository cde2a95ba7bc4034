package reshuffle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripflow/pkg/model"
)

// Phase is the per-trip replan state machine:
// idle → triggered → proposed → (applied | dismissed) → idle, with
// applied → undone reachable at most once per application.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseProposed  Phase = "proposed"
	PhaseApplied   Phase = "applied"
	PhaseDismissed Phase = "dismissed"
	PhaseUndone    Phase = "undone"
)

// FailureCode classifies a failed apply/undo result.
type FailureCode string

const (
	FailNone                 FailureCode = ""
	FailUnknownToken         FailureCode = "unknown_token"
	FailTokenConsumed        FailureCode = "token_consumed"
	FailTokenTripMismatch    FailureCode = "token_trip_mismatch"
	FailStrategyInapplicable FailureCode = "strategy_inapplicable"
)

// Config carries the service tunables.
type Config struct {
	DelayThreshold   time.Duration
	CompressionFloor time.Duration
	LocationRadiusKm float64
	UndoDepth        int
}

// snapshot preserves a pre-strategy schedule for a single undo.
type snapshot struct {
	token    string
	tripID   string
	dayIndex int
	takenAt  time.Time
	schedule model.DaySchedule
	consumed bool
}

type tripState struct {
	phase    Phase
	undo     []*snapshot // oldest first, bounded by UndoDepth
	consumed []*snapshot // spent tokens, kept so reuse reports a distinct code
}

// Service owns trigger detection, strategy application and the undo history.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	det    *Detector
	trips  map[string]*tripState
	tokens map[string]*snapshot
}

// NewService creates a reshuffling service.
func NewService(cfg Config) *Service {
	if cfg.DelayThreshold <= 0 {
		cfg.DelayThreshold = 20 * time.Minute
	}
	if cfg.CompressionFloor <= 0 {
		cfg.CompressionFloor = 30 * time.Minute
	}
	if cfg.LocationRadiusKm <= 0 {
		cfg.LocationRadiusKm = 2.0
	}
	if cfg.UndoDepth <= 0 {
		cfg.UndoDepth = 5
	}
	return &Service{
		cfg:    cfg,
		det:    NewDetector(cfg.DelayThreshold, cfg.CompressionFloor, cfg.LocationRadiusKm),
		trips:  make(map[string]*tripState),
		tokens: make(map[string]*snapshot),
	}
}

// Check runs trigger detection and advances the state machine.
func (s *Service) Check(req CheckRequest, sched model.DaySchedule) []Trigger {
	triggers := s.det.Check(req, sched)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.tripLocked(req.TripID)
	if len(triggers) > 0 {
		st.phase = PhaseProposed
	} else if st.phase == PhaseProposed || st.phase == PhaseDismissed {
		st.phase = PhaseIdle
	}
	return triggers
}

// Phase returns the trip's current replan phase.
func (s *Service) Phase(tripID string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.trips[tripID]; ok {
		return st.phase
	}
	return PhaseIdle
}

// Dismiss rejects the outstanding proposal. The trip stays in the dismissed
// phase until the next check, which moves it back to idle (or re-proposes).
func (s *Service) Dismiss(tripID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.tripLocked(tripID)
	if st.phase == PhaseProposed {
		st.phase = PhaseDismissed
	}
}

// ApplyRequest selects a strategy to run against a schedule.
type ApplyRequest struct {
	TripID   string
	Strategy Strategy
	Schedule model.DaySchedule
	Now      time.Time
}

// ApplyResult reports an attempted application. On failure the schedule
// field echoes the input unchanged.
type ApplyResult struct {
	Success         bool              `json:"success"`
	UpdatedSchedule model.DaySchedule `json:"updated_schedule"`
	Changes         []Change          `json:"changes,omitempty"`
	UndoToken       string            `json:"undo_token,omitempty"`
	Code            FailureCode       `json:"code,omitempty"`
	Message         string            `json:"message"`
}

// Apply validates and runs the selected strategy atomically. All-or-nothing:
// an unsatisfiable strategy returns success=false with the input schedule
// untouched. On success a snapshot of the pre-strategy schedule is pushed
// onto the bounded undo history and its token returned.
func (s *Service) Apply(req ApplyRequest) (ApplyResult, error) {
	if req.TripID == "" {
		return ApplyResult{}, fmt.Errorf("tripId is required")
	}
	if req.Strategy.Kind == "" {
		return ApplyResult{}, fmt.Errorf("strategy kind is required")
	}

	updated, changes, err := apply(req.Strategy, req.Schedule, req.Now, s.cfg.CompressionFloor)
	if err != nil {
		if errors.Is(err, ErrInapplicable) {
			return ApplyResult{
				Success:         false,
				UpdatedSchedule: req.Schedule,
				Code:            FailStrategyInapplicable,
				Message:         err.Error(),
			}, nil
		}
		return ApplyResult{}, err
	}

	snap := &snapshot{
		token:    uuid.NewString(),
		tripID:   req.TripID,
		dayIndex: req.Schedule.DayIndex,
		takenAt:  req.Now,
		schedule: req.Schedule.Clone(),
	}

	s.mu.Lock()
	st := s.tripLocked(req.TripID)
	st.undo = append(st.undo, snap)
	if len(st.undo) > s.cfg.UndoDepth {
		evicted := st.undo[0]
		st.undo = st.undo[1:]
		delete(s.tokens, evicted.token)
	}
	s.tokens[snap.token] = snap
	st.phase = PhaseApplied
	s.mu.Unlock()

	slog.Info("Reshuffle applied", "trip", req.TripID, "strategy", req.Strategy.Kind, "changes", len(changes))
	return ApplyResult{
		Success:         true,
		UpdatedSchedule: updated,
		Changes:         changes,
		UndoToken:       snap.token,
		Message:         fmt.Sprintf("Applied %s: %d slots changed.", req.Strategy.Kind, len(changes)),
	}, nil
}

// UndoResult reports an attempted undo.
type UndoResult struct {
	Success          bool              `json:"success"`
	RestoredSchedule model.DaySchedule `json:"restored_schedule,omitempty"`
	Code             FailureCode       `json:"code,omitempty"`
	Message          string            `json:"message"`
}

// Undo restores the schedule referenced by the token. A token is valid for
// exactly one successful undo; reuse fails with a consumed code distinct from
// an unknown token.
func (s *Service) Undo(tripID, token string) (UndoResult, error) {
	if tripID == "" {
		return UndoResult{}, fmt.Errorf("tripId is required")
	}
	if token == "" {
		return UndoResult{}, fmt.Errorf("undoToken is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.tokens[token]
	if !ok {
		return UndoResult{
			Code:    FailUnknownToken,
			Message: "unknown undo token; it may have expired from the history",
		}, nil
	}
	if snap.tripID != tripID {
		return UndoResult{
			Code:    FailTokenTripMismatch,
			Message: fmt.Sprintf("undo token belongs to a different trip, not %s", tripID),
		}, nil
	}
	if snap.consumed {
		return UndoResult{
			Code:    FailTokenConsumed,
			Message: "undo token already used; each reshuffle can be undone once",
		}, nil
	}

	snap.consumed = true
	st := s.tripLocked(tripID)
	for i, sn := range st.undo {
		if sn.token == token {
			st.undo = append(st.undo[:i], st.undo[i+1:]...)
			break
		}
	}
	st.consumed = append(st.consumed, snap)
	if len(st.consumed) > s.cfg.UndoDepth {
		evicted := st.consumed[0]
		st.consumed = st.consumed[1:]
		delete(s.tokens, evicted.token)
	}
	st.phase = PhaseUndone

	slog.Info("Reshuffle undone", "trip", tripID, "day", snap.dayIndex)
	return UndoResult{
		Success:          true,
		RestoredSchedule: snap.schedule.Clone(),
		Message:          "Schedule restored to its pre-reshuffle state.",
	}, nil
}

// DropTrip discards all replan state and undo history for a trip. Session
// teardown calls this; every outstanding token becomes permanently invalid.
func (s *Service) DropTrip(tripID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.trips[tripID]
	if !ok {
		return
	}
	for _, snap := range st.undo {
		delete(s.tokens, snap.token)
	}
	for _, snap := range st.consumed {
		delete(s.tokens, snap.token)
	}
	delete(s.trips, tripID)
}

// UndoDepth returns the number of snapshots currently held for a trip.
func (s *Service) UndoDepth(tripID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.trips[tripID]; ok {
		return len(st.undo)
	}
	return 0
}

func (s *Service) tripLocked(tripID string) *tripState {
	st, ok := s.trips[tripID]
	if !ok {
		st = &tripState{phase: PhaseIdle}
		s.trips[tripID] = st
	}
	return st
}
