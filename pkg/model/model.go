package model

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// SlotStatus tracks a slot's progress through the day.
type SlotStatus string

const (
	SlotScheduled  SlotStatus = "scheduled"
	SlotInProgress SlotStatus = "in_progress"
	SlotCompleted  SlotStatus = "completed"
	SlotSkipped    SlotStatus = "skipped"
)

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point converts to an orb.Point (lon/lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// DistanceKm returns the haversine distance between two coordinates in kilometers.
func DistanceKm(a, b Coordinate) float64 {
	return geo.Distance(a.Point(), b.Point()) / 1000.0
}

// Activity is what the traveler does during a slot. Produced upstream by the
// itinerary generator; the engine never invents activities, it only moves them.
type Activity struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"` // e.g. "museum", "restaurant", "walk"
	Venue    string      `json:"venue,omitempty"`
	Location *Coordinate `json:"location,omitempty"`
	Rating   float64     `json:"rating,omitempty"`
}

// Slot is a single scheduled period in a day plan.
type Slot struct {
	ID       string    `json:"id"`
	Activity Activity  `json:"activity"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Locked   bool      `json:"locked"`
	// Rigidity expresses how immovable the slot is: 0 is fully flexible,
	// 1 is a hard anchor (booked tour, train departure).
	Rigidity float64 `json:"rigidity"`
}

// Duration returns the scheduled length of the slot.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// DaySchedule is an ordered list of slots for one day of a trip.
// The engine treats it as a value: reshuffling returns a new schedule and
// never mutates the caller's copy in place.
type DaySchedule struct {
	TripID   string `json:"trip_id"`
	DayIndex int    `json:"day_index"`
	City     string `json:"city,omitempty"`
	Slots    []Slot `json:"slots"`
}

// Clone returns a deep copy of the schedule.
func (d DaySchedule) Clone() DaySchedule {
	out := d
	out.Slots = make([]Slot, len(d.Slots))
	copy(out.Slots, d.Slots)
	for i := range out.Slots {
		if loc := out.Slots[i].Activity.Location; loc != nil {
			c := *loc
			out.Slots[i].Activity.Location = &c
		}
	}
	return out
}

// SlotByID returns the slot with the given id and its index.
func (d DaySchedule) SlotByID(id string) (Slot, int, bool) {
	for i, s := range d.Slots {
		if s.ID == id {
			return s, i, true
		}
	}
	return Slot{}, -1, false
}

// RemainingAt returns the slots that have not yet ended at the given time,
// preserving order.
func (d DaySchedule) RemainingAt(t time.Time) []Slot {
	var out []Slot
	for _, s := range d.Slots {
		if s.End.After(t) {
			out = append(out, s)
		}
	}
	return out
}

// ActivityNames returns the slot activity names in schedule order.
func (d DaySchedule) ActivityNames() []string {
	names := make([]string, 0, len(d.Slots))
	for _, s := range d.Slots {
		names = append(names, s.Activity.Name)
	}
	return names
}
