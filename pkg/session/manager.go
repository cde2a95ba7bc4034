// Package session tracks a traveler's progress through one day of a trip:
// slot statuses, accumulated delay, location and the simulated clock. One
// session exists per trip id; all mutations for a trip are serialized behind
// that trip's lock.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tripflow/pkg/model"
	"tripflow/pkg/simclock"
)

var (
	// ErrNotInitialized is returned for operations on a trip with no session.
	ErrNotInitialized = errors.New("no active session for trip")
	// ErrSlotNotFound is returned when a slot id is not in the day schedule.
	ErrSlotNotFound = errors.New("slot not found in schedule")
)

// State is a consistent snapshot of one trip's session.
type State struct {
	TripID          string                      `json:"trip_id"`
	DayIndex        int                         `json:"day_index"`
	Schedule        model.DaySchedule           `json:"schedule"`
	CurrentTime     time.Time                   `json:"current_time"`
	Paused          bool                        `json:"paused"`
	TimeMultiplier  float64                     `json:"time_multiplier"`
	CurrentLocation *model.Coordinate           `json:"current_location,omitempty"`
	CurrentVenueID  string                      `json:"current_venue_id,omitempty"`
	SlotStatuses    map[string]model.SlotStatus `json:"slot_statuses"`
	DelayMinutes    int                         `json:"accumulated_delay_minutes"`
	CompletedCount  int                         `json:"completed_count"`
	SkippedCount    int                         `json:"skipped_count"`
}

// FinalCounters is what End returns once a session is torn down.
type FinalCounters struct {
	TripID         string `json:"trip_id"`
	CompletedCount int    `json:"completed_count"`
	SkippedCount   int    `json:"skipped_count"`
	DelayMinutes   int    `json:"delay_minutes"`
}

// record is the mutable per-trip unit of mutual exclusion.
type record struct {
	mu             sync.Mutex
	clock          *simclock.Clock
	dayIndex       int
	schedule       model.DaySchedule
	location       *model.Coordinate
	currentVenueID string
	slotStatuses   map[string]model.SlotStatus
	delayMinutes   int
	completedCount int
	skippedCount   int
}

// Manager owns all active sessions, keyed by trip id.
type Manager struct {
	mu    sync.RWMutex
	trips map[string]*record
	now   func() time.Time // wall source handed to new clocks
}

// NewManager creates a session manager using the real wall clock.
func NewManager() *Manager {
	return NewManagerWithSource(time.Now)
}

// NewManagerWithSource creates a manager with an injectable wall source.
func NewManagerWithSource(now func() time.Time) *Manager {
	return &Manager{
		trips: make(map[string]*record),
		now:   now,
	}
}

// Init creates (or cleanly overwrites) the session for a trip. If start is
// zero the clock is seeded from the first slot's scheduled start, falling back
// to wall time for an empty schedule.
func (m *Manager) Init(tripID string, schedule model.DaySchedule, dayIndex int, start time.Time) (State, error) {
	if tripID == "" {
		return State{}, fmt.Errorf("tripId is required")
	}
	if dayIndex < 0 {
		return State{}, fmt.Errorf("dayIndex must be >= 0, got %d", dayIndex)
	}

	if start.IsZero() {
		if len(schedule.Slots) > 0 {
			start = schedule.Slots[0].Start
		} else {
			start = m.now()
		}
	}

	statuses := make(map[string]model.SlotStatus, len(schedule.Slots))
	for _, s := range schedule.Slots {
		statuses[s.ID] = model.SlotScheduled
	}

	r := &record{
		clock:        simclock.NewWithSource(start, m.now),
		dayIndex:     dayIndex,
		schedule:     schedule.Clone(),
		slotStatuses: statuses,
	}

	m.mu.Lock()
	m.trips[tripID] = r
	m.mu.Unlock()

	return r.snapshot(tripID), nil
}

// Get returns a consistent snapshot of the trip's session.
func (m *Manager) Get(tripID string) (State, bool) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(tripID), true
}

// ActiveTrips returns the ids of all trips with a live session.
func (m *Manager) ActiveTrips() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.trips))
	for id := range m.trips {
		ids = append(ids, id)
	}
	return ids
}

// End removes the session and returns its final counters.
func (m *Manager) End(tripID string) (FinalCounters, error) {
	m.mu.Lock()
	r, ok := m.trips[tripID]
	delete(m.trips, tripID)
	m.mu.Unlock()
	if !ok {
		return FinalCounters{}, ErrNotInitialized
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return FinalCounters{
		TripID:         tripID,
		CompletedCount: r.completedCount,
		SkippedCount:   r.skippedCount,
		DelayMinutes:   r.delayMinutes,
	}, nil
}

// SkipSlot marks a slot skipped. Idempotent: skipping an already skipped slot
// changes nothing and reports changed=false.
func (m *Manager) SkipSlot(tripID, slotID string) (State, bool, error) {
	return m.setSlotStatus(tripID, slotID, model.SlotSkipped)
}

// CompleteSlot marks a slot completed. Idempotent like SkipSlot.
func (m *Manager) CompleteSlot(tripID, slotID string) (State, bool, error) {
	return m.setSlotStatus(tripID, slotID, model.SlotCompleted)
}

func (m *Manager) setSlotStatus(tripID, slotID string, target model.SlotStatus) (State, bool, error) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, false, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.slotStatuses[slotID]
	if !ok {
		return State{}, false, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if current == target {
		return r.snapshotLocked(tripID), false, nil
	}

	// Undo the old status's counter contribution before applying the new one,
	// so flipping skipped -> completed keeps both counters accurate.
	switch current {
	case model.SlotCompleted:
		r.completedCount--
	case model.SlotSkipped:
		r.skippedCount--
	}
	switch target {
	case model.SlotCompleted:
		r.completedCount++
	case model.SlotSkipped:
		r.skippedCount++
	}
	r.slotStatuses[slotID] = target
	if r.currentVenueID == slotID {
		r.currentVenueID = ""
	}
	return r.snapshotLocked(tripID), true, nil
}

// StartActivity marks a slot in progress and makes it the current venue.
func (m *Manager) StartActivity(tripID, slotID string) (State, error) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slotStatuses[slotID]; !ok {
		return State{}, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	r.slotStatuses[slotID] = model.SlotInProgress
	r.currentVenueID = slotID
	if slot, _, ok := r.schedule.SlotByID(slotID); ok && slot.Activity.Location != nil {
		loc := *slot.Activity.Location
		r.location = &loc
	}
	return r.snapshotLocked(tripID), nil
}

// ExtendSlot lengthens a slot. The extra time counts toward accumulated delay
// since everything after it starts later.
func (m *Manager) ExtendSlot(tripID, slotID string, minutes int) (State, error) {
	if minutes <= 0 {
		return State{}, fmt.Errorf("minutes must be > 0, got %d", minutes)
	}
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, idx, ok := r.schedule.SlotByID(slotID)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	r.schedule.Slots[idx].End = r.schedule.Slots[idx].End.Add(time.Duration(minutes) * time.Minute)
	r.delayMinutes += minutes
	return r.snapshotLocked(tripID), nil
}

// AddDelay increases the accumulated delay. The accumulator never decreases.
func (m *Manager) AddDelay(tripID string, minutes int) (State, error) {
	if minutes <= 0 {
		return State{}, fmt.Errorf("minutes must be > 0, got %d", minutes)
	}
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delayMinutes += minutes
	return r.snapshotLocked(tripID), nil
}

// SetPaused freezes or resumes the trip's clock.
func (m *Manager) SetPaused(tripID string, paused bool) (State, error) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if paused {
		r.clock.Pause()
	} else {
		r.clock.Resume()
	}
	return r.snapshotLocked(tripID), nil
}

// SetTime moves the trip's clock to an explicit simulated time.
func (m *Manager) SetTime(tripID string, t time.Time) (State, error) {
	if t.IsZero() {
		return State{}, fmt.Errorf("time is required")
	}
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock.Set(t)
	return r.snapshotLocked(tripID), nil
}

// SetMultiplier changes the trip clock's dilation factor.
func (m *Manager) SetMultiplier(tripID string, factor float64) (State, error) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.clock.SetMultiplier(factor); err != nil {
		return State{}, err
	}
	return r.snapshotLocked(tripID), nil
}

// SetLocation updates the traveler's reported position.
func (m *Manager) SetLocation(tripID string, loc model.Coordinate) (State, error) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.location = &loc
	return r.snapshotLocked(tripID), nil
}

// UpdateSchedule replaces the session's schedule copy, preserving statuses of
// surviving slots. Slots new to the schedule start as scheduled. Called after
// a reshuffle is applied or undone.
func (m *Manager) UpdateSchedule(tripID string, schedule model.DaySchedule) (State, error) {
	r := m.lookup(tripID)
	if r == nil {
		return State{}, ErrNotInitialized
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make(map[string]model.SlotStatus, len(schedule.Slots))
	for _, s := range schedule.Slots {
		if st, ok := r.slotStatuses[s.ID]; ok {
			statuses[s.ID] = st
		} else {
			statuses[s.ID] = model.SlotScheduled
		}
	}
	r.schedule = schedule.Clone()
	r.slotStatuses = statuses
	return r.snapshotLocked(tripID), nil
}

func (m *Manager) lookup(tripID string) *record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trips[tripID]
}

func (r *record) snapshot(tripID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(tripID)
}

// snapshotLocked builds a State with copies of all mutable members, so
// callers never observe torn reads across the status map and counters.
func (r *record) snapshotLocked(tripID string) State {
	statuses := make(map[string]model.SlotStatus, len(r.slotStatuses))
	for k, v := range r.slotStatuses {
		statuses[k] = v
	}
	var loc *model.Coordinate
	if r.location != nil {
		c := *r.location
		loc = &c
	}
	return State{
		TripID:          tripID,
		DayIndex:        r.dayIndex,
		Schedule:        r.schedule.Clone(),
		CurrentTime:     r.clock.Now(),
		Paused:          r.clock.Paused(),
		TimeMultiplier:  r.clock.Multiplier(),
		CurrentLocation: loc,
		CurrentVenueID:  r.currentVenueID,
		SlotStatuses:    statuses,
		DelayMinutes:    r.delayMinutes,
		CompletedCount:  r.completedCount,
		SkippedCount:    r.skippedCount,
	}
}
