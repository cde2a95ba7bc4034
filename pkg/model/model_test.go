package model

import (
	"testing"
	"time"
)

func mkSchedule() DaySchedule {
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	return DaySchedule{
		TripID:   "t1",
		DayIndex: 0,
		City:     "Lisbon",
		Slots: []Slot{
			{ID: "s1", Activity: Activity{ID: "a1", Name: "Castelo de S. Jorge", Location: &Coordinate{Lat: 38.7139, Lon: -9.1335}}, Start: day.Add(9 * time.Hour), End: day.Add(11 * time.Hour)},
			{ID: "s2", Activity: Activity{ID: "a2", Name: "Time Out Market"}, Start: day.Add(12 * time.Hour), End: day.Add(13 * time.Hour)},
			{ID: "s3", Activity: Activity{ID: "a3", Name: "Belem Tower"}, Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour), Locked: true, Rigidity: 1},
		},
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := mkSchedule()
	clone := orig.Clone()

	clone.Slots[0].Start = clone.Slots[0].Start.Add(time.Hour)
	clone.Slots[0].Activity.Location.Lat = 0

	if orig.Slots[0].Start.Hour() != 9 {
		t.Errorf("clone mutation leaked into original start time")
	}
	if orig.Slots[0].Activity.Location.Lat != 38.7139 {
		t.Errorf("clone mutation leaked into original location")
	}
}

func TestSlotByID(t *testing.T) {
	d := mkSchedule()
	s, idx, ok := d.SlotByID("s2")
	if !ok || idx != 1 || s.Activity.Name != "Time Out Market" {
		t.Errorf("SlotByID(s2) = %v, %d, %v", s, idx, ok)
	}
	if _, _, ok := d.SlotByID("nope"); ok {
		t.Error("expected miss for unknown slot id")
	}
}

func TestRemainingAt(t *testing.T) {
	d := mkSchedule()
	noon := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	rem := d.RemainingAt(noon)
	// s2 is in progress (ends 13:00), s3 has not started.
	if len(rem) != 2 {
		t.Fatalf("expected 2 remaining slots, got %d", len(rem))
	}
	if rem[0].ID != "s2" || rem[1].ID != "s3" {
		t.Errorf("remaining order wrong: %s, %s", rem[0].ID, rem[1].ID)
	}
}

func TestDistanceKm(t *testing.T) {
	lisbon := Coordinate{Lat: 38.7223, Lon: -9.1393}
	porto := Coordinate{Lat: 41.1579, Lon: -8.6291}
	d := DistanceKm(lisbon, porto)
	if d < 250 || d > 290 {
		t.Errorf("Lisbon-Porto distance out of range: %.1f km", d)
	}
	if DistanceKm(lisbon, lisbon) != 0 {
		t.Errorf("distance to self should be 0")
	}
}
