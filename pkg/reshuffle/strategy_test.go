package reshuffle

import (
	"errors"
	"testing"
	"time"

	"tripflow/pkg/model"
)

const floor = 30 * time.Minute

func TestCompressShiftsAndPreservesDayEnd(t *testing.T) {
	sched := fourSlotSchedule()
	orig := sched.Clone()

	updated, changes, err := apply(Strategy{Kind: StrategyCompressRemaining, DelayMinutes: 25}, sched, noon, floor)
	if err != nil {
		t.Fatal(err)
	}

	// Slots s1/s2 already started or done; s3 and s4 are the region.
	for _, id := range []string{"s3", "s4"} {
		before, _, _ := orig.SlotByID(id)
		after, _, ok := updated.SlotByID(id)
		if !ok {
			t.Fatalf("slot %s missing after compress", id)
		}
		if !after.Start.After(before.Start) {
			t.Errorf("slot %s start not shifted later: %v -> %v", id, before.Start, after.Start)
		}
		if after.Duration() < floor {
			t.Errorf("slot %s shrunk below floor: %v", id, after.Duration())
		}
	}

	lastBefore := orig.Slots[len(orig.Slots)-1]
	lastAfter := updated.Slots[len(updated.Slots)-1]
	if !lastAfter.End.Equal(lastBefore.End) {
		t.Errorf("day end moved: %v -> %v", lastBefore.End, lastAfter.End)
	}
	if len(changes) == 0 {
		t.Error("expected change records")
	}

	// Input untouched.
	for i := range sched.Slots {
		if !sched.Slots[i].Start.Equal(orig.Slots[i].Start) {
			t.Error("apply mutated the input schedule")
		}
	}
}

func TestCompressInfeasibleWithoutSlack(t *testing.T) {
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	sched := model.DaySchedule{
		TripID: "t1",
		Slots: []model.Slot{
			{ID: "s1", Activity: model.Activity{Name: "Short stop"}, Start: day.Add(14 * time.Hour), End: day.Add(14*time.Hour + 35*time.Minute)},
		},
	}

	_, _, err := apply(Strategy{Kind: StrategyCompressRemaining, DelayMinutes: 60}, sched, noon, floor)
	if !errors.Is(err, ErrInapplicable) {
		t.Fatalf("expected ErrInapplicable, got %v", err)
	}
}

func TestCompressStopsAtLockedSlot(t *testing.T) {
	sched := fourSlotSchedule()
	sched.Slots[2].Locked = true // s3 locked, region is empty

	_, _, err := apply(Strategy{Kind: StrategyCompressRemaining, DelayMinutes: 25}, sched, noon, floor)
	if !errors.Is(err, ErrInapplicable) {
		t.Fatalf("expected ErrInapplicable with locked region, got %v", err)
	}
}

func TestShiftMovesAllPending(t *testing.T) {
	sched := fourSlotSchedule()
	orig := sched.Clone()

	updated, _, err := apply(Strategy{Kind: StrategyShiftToLater, DelayMinutes: 20}, sched, noon, floor)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"s3", "s4"} {
		before, _, _ := orig.SlotByID(id)
		after, _, _ := updated.SlotByID(id)
		if !after.Start.Equal(before.Start.Add(20 * time.Minute)) {
			t.Errorf("slot %s start = %v, want %v", id, after.Start, before.Start.Add(20*time.Minute))
		}
		if after.Duration() != before.Duration() {
			t.Errorf("shift changed slot %s duration", id)
		}
	}
}

func TestShiftRefusesLockedSlot(t *testing.T) {
	sched := fourSlotSchedule()
	sched.Slots[3].Locked = true

	_, _, err := apply(Strategy{Kind: StrategyShiftToLater, DelayMinutes: 20}, sched, noon, floor)
	if !errors.Is(err, ErrInapplicable) {
		t.Fatalf("expected ErrInapplicable, got %v", err)
	}
}

func TestDropPicksLeastRigid(t *testing.T) {
	sched := fourSlotSchedule()

	updated, changes, err := apply(Strategy{Kind: StrategyDropLowestPriority, DelayMinutes: 25}, sched, noon, floor)
	if err != nil {
		t.Fatal(err)
	}
	// s4 has the lowest rigidity (0.1) among remaining slots.
	if _, _, ok := updated.SlotByID("s4"); ok {
		t.Error("expected s4 to be dropped")
	}
	if len(updated.Slots) != 3 {
		t.Errorf("expected 3 slots, got %d", len(updated.Slots))
	}
	if changes[0].Kind != "dropped" {
		t.Errorf("first change = %s, want dropped", changes[0].Kind)
	}
}

func TestDropTargetedSlot(t *testing.T) {
	sched := fourSlotSchedule()
	updated, _, err := apply(Strategy{Kind: StrategyDropLowestPriority, SlotID: "s3", DelayMinutes: 25}, sched, noon, floor)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := updated.SlotByID("s3"); ok {
		t.Error("expected s3 to be dropped")
	}
}

func TestDropRefusesLockedTarget(t *testing.T) {
	sched := fourSlotSchedule()
	sched.Slots[2].Locked = true
	_, _, err := apply(Strategy{Kind: StrategyDropLowestPriority, SlotID: "s3"}, sched, noon, floor)
	if !errors.Is(err, ErrInapplicable) {
		t.Fatalf("expected ErrInapplicable, got %v", err)
	}
}

func TestSwapReplacesActivityKeepsTiming(t *testing.T) {
	sched := fourSlotSchedule()
	alt := &model.Activity{ID: "alt1", Name: "Tile museum"}

	updated, changes, err := apply(Strategy{Kind: StrategySwapActivity, SlotID: "s3", Alternative: alt}, sched, noon, floor)
	if err != nil {
		t.Fatal(err)
	}
	slot, _, _ := updated.SlotByID("s3")
	if slot.Activity.Name != "Tile museum" {
		t.Errorf("activity = %s", slot.Activity.Name)
	}
	orig, _, _ := sched.SlotByID("s3")
	if !slot.Start.Equal(orig.Start) || !slot.End.Equal(orig.End) {
		t.Error("swap must keep slot timing")
	}
	if changes[0].Kind != "swapped" {
		t.Errorf("change kind = %s", changes[0].Kind)
	}
}

func TestSwapNeedsAlternative(t *testing.T) {
	sched := fourSlotSchedule()
	_, _, err := apply(Strategy{Kind: StrategySwapActivity, SlotID: "s3"}, sched, noon, floor)
	if !errors.Is(err, ErrInapplicable) {
		t.Fatalf("expected ErrInapplicable, got %v", err)
	}
}

func TestUnknownStrategyKind(t *testing.T) {
	_, _, err := apply(Strategy{Kind: "teleport"}, fourSlotSchedule(), noon, floor)
	if err == nil || errors.Is(err, ErrInapplicable) {
		t.Fatalf("expected hard error for unknown kind, got %v", err)
	}
}
