package reshuffle

import (
	"testing"
	"time"

	"tripflow/pkg/model"
)

var noon = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func fourSlotSchedule() model.DaySchedule {
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	return model.DaySchedule{
		TripID:   "t1",
		DayIndex: 0,
		City:     "Lisbon",
		Slots: []model.Slot{
			{ID: "s1", Activity: model.Activity{Name: "Alfama walk", Rating: 4.5}, Start: day.Add(9 * time.Hour), End: day.Add(11 * time.Hour), Rigidity: 0.3},
			{ID: "s2", Activity: model.Activity{Name: "Lunch", Rating: 4.0, Location: &model.Coordinate{Lat: 38.7071, Lon: -9.1355}}, Start: day.Add(11*time.Hour + 30*time.Minute), End: day.Add(13 * time.Hour), Rigidity: 0.5},
			{ID: "s3", Activity: model.Activity{Name: "Oceanarium", Rating: 4.8}, Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour), Rigidity: 0.2},
			{ID: "s4", Activity: model.Activity{Name: "Sunset viewpoint", Rating: 4.2}, Start: day.Add(16*time.Hour + 30*time.Minute), End: day.Add(18 * time.Hour), Rigidity: 0.1},
		},
	}
}

func testDetector() *Detector {
	return NewDetector(20*time.Minute, 30*time.Minute, 2.0)
}

func TestNoTriggerBelowThreshold(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, DelayMinutes: 15}, fourSlotSchedule())
	if len(triggers) != 0 {
		t.Errorf("expected no triggers at 15 min delay, got %d", len(triggers))
	}
}

func TestDelayTriggerFiresWithStrategies(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, DelayMinutes: 25}, fourSlotSchedule())
	if len(triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(triggers))
	}
	trg := triggers[0]
	if trg.Kind != TriggerDelay {
		t.Errorf("kind = %s", trg.Kind)
	}
	if trg.Severity != SeverityModerate {
		t.Errorf("severity = %s, want moderate", trg.Severity)
	}
	if len(trg.Strategies) < 1 || len(trg.Strategies) > 3 {
		t.Fatalf("expected 1-3 strategies, got %d", len(trg.Strategies))
	}
	if trg.Strategies[0].Kind != StrategyCompressRemaining {
		t.Errorf("top strategy = %s, want compress_remaining", trg.Strategies[0].Kind)
	}
	for i, s := range trg.Strategies {
		if s.Rank != i+1 {
			t.Errorf("strategy %d has rank %d", i, s.Rank)
		}
	}
}

func TestSevereDelay(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, DelayMinutes: 45}, fourSlotSchedule())
	if len(triggers) != 1 || triggers[0].Severity != SeveritySevere {
		t.Errorf("expected severe trigger at 45 min, got %+v", triggers)
	}
}

func TestDropStrategyRequiresConfirmation(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, DelayMinutes: 25}, fourSlotSchedule())
	if len(triggers) != 1 {
		t.Fatal("expected a trigger")
	}
	found := false
	for _, s := range triggers[0].Strategies {
		if s.Kind == StrategyDropLowestPriority {
			found = true
			if !s.RequiresConfirmation {
				t.Error("drop strategy must require confirmation")
			}
		}
	}
	if !found {
		t.Error("expected a drop strategy among the proposals")
	}
}

func TestUserIssueTrigger(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, UserReportedIssue: "the queue here is enormous"}, fourSlotSchedule())
	if len(triggers) != 1 || triggers[0].Kind != TriggerUserIssue {
		t.Fatalf("expected user issue trigger, got %+v", triggers)
	}
	if triggers[0].Strategies[0].Kind != StrategyDropLowestPriority {
		t.Errorf("top strategy for user issue = %s", triggers[0].Strategies[0].Kind)
	}
}

func TestWeatherComplaintBecomesWeatherConflict(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, UserReportedIssue: "it started to rain hard"}, fourSlotSchedule())
	if len(triggers) != 1 || triggers[0].Kind != TriggerWeatherConflict {
		t.Fatalf("expected weather conflict, got %+v", triggers)
	}
	if triggers[0].Strategies[0].Kind != StrategySwapActivity {
		t.Errorf("top weather strategy = %s", triggers[0].Strategies[0].Kind)
	}
}

func TestTiredUserState(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, UserState: "tired"}, fourSlotSchedule())
	if len(triggers) != 1 || triggers[0].Kind != TriggerUserIssue {
		t.Fatalf("expected user issue trigger for tired state, got %+v", triggers)
	}
}

func TestLocationMismatch(t *testing.T) {
	d := testDetector()
	sched := fourSlotSchedule()

	// ~8 km away from the lunch venue.
	far := &model.Coordinate{Lat: 38.78, Lon: -9.19}
	triggers := d.Check(CheckRequest{TripID: "t1", Now: noon, Location: far, CurrentVenueID: "s2"}, sched)
	if len(triggers) != 1 || triggers[0].Kind != TriggerLocationMismatch {
		t.Fatalf("expected location mismatch, got %+v", triggers)
	}

	// Standing at the venue: no trigger.
	at := &model.Coordinate{Lat: 38.7071, Lon: -9.1355}
	triggers = d.Check(CheckRequest{TripID: "t1", Now: noon, Location: at, CurrentVenueID: "s2"}, sched)
	if len(triggers) != 0 {
		t.Errorf("expected no trigger at the venue, got %+v", triggers)
	}
}

func TestMultipleTriggersCanFireTogether(t *testing.T) {
	d := testDetector()
	triggers := d.Check(CheckRequest{
		TripID:            "t1",
		Now:               noon,
		DelayMinutes:      30,
		UserReportedIssue: "I'm stuck in traffic",
	}, fourSlotSchedule())
	if len(triggers) != 2 {
		t.Errorf("expected delay + user issue triggers, got %d", len(triggers))
	}
}
