// Package eventq implements the per-trip notification backlog: priority
// ordering, de-duplication, expiry and a closed registry of well-known event
// variants.
package eventq

import (
	"time"
)

// Kind is the closed set of event variants the engine can emit. Unknown kinds
// are rejected at the factory boundary.
type Kind string

const (
	KindMorningBriefing     Kind = "morning_briefing"
	KindDelayWarning        Kind = "delay_warning"
	KindClosureAlert        Kind = "closure_alert"
	KindWeatherAlert        Kind = "weather_alert"
	KindConfirmationRequest Kind = "confirmation_request"
	KindReshuffleProposal   Kind = "reshuffle_proposal"
	KindDepartureReminder   Kind = "departure_reminder"
)

// Source identifies where an event originated.
type Source string

const (
	SourceSimulator Source = "simulator"
	SourceSensor    Source = "sensor"
	SourceDetector  Source = "detector"
	SourceManual    Source = "manual"
)

// Priority orders delivery. Urgent first, ties broken by enqueue order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// rank maps priorities to sortable weights. Unknown priorities sort as normal.
func (p Priority) rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Status tracks an event through its delivery lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusDismissed Status = "dismissed"
	StatusActioned  Status = "actioned"
)

// Action is an offerable next step attached to an event.
type Action struct {
	Type    string         `json:"type"` // e.g. "navigate", "confirm", "skip"
	Label   string         `json:"label"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Event is a queued notification for one trip.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Source    Source    `json:"source"`
	Priority  Priority  `json:"priority"`
	DayIndex  int       `json:"day_index"`
	SlotID    string    `json:"slot_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Tip       string    `json:"tip,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero means no expiry
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"` // audit note set by MarkActioned
}

// Expired reports whether the event's expiry has passed at the given time.
func (e *Event) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now)
}
