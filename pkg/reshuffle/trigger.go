// Package reshuffle detects when an in-progress day plan has diverged from
// expectation and computes, applies and undoes corrective replans.
package reshuffle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripflow/pkg/model"
)

// TriggerKind is the detected divergence condition.
type TriggerKind string

const (
	TriggerDelay            TriggerKind = "delay_exceeds_threshold"
	TriggerUserIssue        TriggerKind = "user_reported_issue"
	TriggerWeatherConflict  TriggerKind = "weather_conflict"
	TriggerLocationMismatch TriggerKind = "location_mismatch"
)

// Severity grades how badly the plan is off.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Trigger is one fired divergence condition plus its ranked fixes.
type Trigger struct {
	ID         string      `json:"id"`
	Kind       TriggerKind `json:"kind"`
	Severity   Severity    `json:"severity"`
	Message    string      `json:"message"`
	SlotIDs    []string    `json:"slot_ids,omitempty"` // affected schedule region
	DetectedAt time.Time   `json:"detected_at"`
	Strategies []Strategy  `json:"strategies"`
}

// CheckRequest carries the signals the detector compares against the plan.
type CheckRequest struct {
	TripID            string
	Now               time.Time
	DelayMinutes      int
	UserReportedIssue string
	UserState         string // e.g. "tired", "hungry"
	Location          *model.Coordinate
	CurrentVenueID    string
}

// Detector compares expected vs. actual progress.
type Detector struct {
	delayThreshold   time.Duration
	locationRadiusKm float64
	floor            time.Duration
}

// NewDetector creates a detector with the given tunables.
func NewDetector(delayThreshold, compressionFloor time.Duration, locationRadiusKm float64) *Detector {
	return &Detector{
		delayThreshold:   delayThreshold,
		locationRadiusKm: locationRadiusKm,
		floor:            compressionFloor,
	}
}

// Check evaluates all trigger conditions against the schedule and returns
// the fired triggers, each with 1-3 ranked strategies attached.
func (d *Detector) Check(req CheckRequest, sched model.DaySchedule) []Trigger {
	var triggers []Trigger

	if trg := d.checkDelay(req, sched); trg != nil {
		triggers = append(triggers, *trg)
	}
	if trg := d.checkUserIssue(req, sched); trg != nil {
		triggers = append(triggers, *trg)
	}
	if trg := d.checkLocation(req, sched); trg != nil {
		triggers = append(triggers, *trg)
	}

	return triggers
}

func (d *Detector) checkDelay(req CheckRequest, sched model.DaySchedule) *Trigger {
	drift := time.Duration(req.DelayMinutes) * time.Minute
	if drift < d.delayThreshold {
		return nil
	}

	severity := SeverityModerate
	if drift >= 2*d.delayThreshold {
		severity = SeveritySevere
	}

	trg := &Trigger{
		ID:         uuid.NewString(),
		Kind:       TriggerDelay,
		Severity:   severity,
		Message:    fmt.Sprintf("You are %d minutes behind plan.", req.DelayMinutes),
		SlotIDs:    remainingIDs(sched, req.Now),
		DetectedAt: req.Now,
	}
	trg.Strategies = d.proposeForDelay(req, sched)
	return trg
}

func (d *Detector) checkUserIssue(req CheckRequest, sched model.DaySchedule) *Trigger {
	issue := strings.TrimSpace(req.UserReportedIssue)
	state := strings.ToLower(strings.TrimSpace(req.UserState))
	if issue == "" && state != "tired" && state != "exhausted" && state != "overwhelmed" {
		return nil
	}

	kind := TriggerUserIssue
	msg := issue
	if msg == "" {
		msg = fmt.Sprintf("You said you are feeling %s.", state)
	}
	if isWeatherComplaint(issue) {
		kind = TriggerWeatherConflict
	}

	trg := &Trigger{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   SeverityModerate,
		Message:    msg,
		SlotIDs:    remainingIDs(sched, req.Now),
		DetectedAt: req.Now,
	}
	if kind == TriggerWeatherConflict {
		trg.Strategies = d.proposeForWeather(req, sched)
	} else {
		trg.Strategies = d.proposeForUserIssue(req, sched)
	}
	return trg
}

func (d *Detector) checkLocation(req CheckRequest, sched model.DaySchedule) *Trigger {
	if req.Location == nil || req.CurrentVenueID == "" {
		return nil
	}
	slot, _, ok := sched.SlotByID(req.CurrentVenueID)
	if !ok || slot.Activity.Location == nil {
		return nil
	}

	distKm := model.DistanceKm(*req.Location, *slot.Activity.Location)
	if distKm <= d.locationRadiusKm {
		return nil
	}

	trg := &Trigger{
		ID:         uuid.NewString(),
		Kind:       TriggerLocationMismatch,
		Severity:   SeverityMinor,
		Message:    fmt.Sprintf("You are %.1f km from %s.", distKm, slot.Activity.Name),
		SlotIDs:    []string{slot.ID},
		DetectedAt: req.Now,
	}
	trg.Strategies = d.proposeForLocation(req, sched)
	return trg
}

func isWeatherComplaint(issue string) bool {
	lower := strings.ToLower(issue)
	for _, kw := range []string{"rain", "storm", "weather", "snow", "heat", "wind"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func remainingIDs(sched model.DaySchedule, now time.Time) []string {
	var ids []string
	for _, s := range sched.RemainingAt(now) {
		ids = append(ids, s.ID)
	}
	return ids
}
