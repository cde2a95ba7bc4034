package simclock

import (
	"testing"
	"time"
)

// fakeWall is a steppable wall-clock source.
type fakeWall struct {
	t time.Time
}

func (f *fakeWall) now() time.Time { return f.t }

func (f *fakeWall) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestNowAdvancesWithWallTime(t *testing.T) {
	wall := &fakeWall{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	c := NewWithSource(start, wall.now)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("initial Now() = %v, want %v", got, start)
	}

	wall.advance(10 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("Now() after 10m = %v", got)
	}
}

func TestNowIsIdempotentAtFixedInstant(t *testing.T) {
	wall := &fakeWall{t: time.Unix(1000, 0)}
	c := NewWithSource(time.Unix(5000, 0), wall.now)
	wall.advance(37 * time.Second)

	first := c.Now()
	second := c.Now()
	if !first.Equal(second) {
		t.Errorf("two derivations at the same wall instant differ: %v vs %v", first, second)
	}
}

func TestMultiplier(t *testing.T) {
	wall := &fakeWall{t: time.Unix(0, 0)}
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	c := NewWithSource(start, wall.now)

	if err := c.SetMultiplier(60); err != nil {
		t.Fatal(err)
	}
	wall.advance(time.Minute)
	if got := c.Now(); !got.Equal(start.Add(time.Hour)) {
		t.Errorf("1 wall minute at 60x = %v, want %v", got, start.Add(time.Hour))
	}

	// Zero freezes.
	if err := c.SetMultiplier(0); err != nil {
		t.Fatal(err)
	}
	frozen := c.Now()
	wall.advance(time.Hour)
	if got := c.Now(); !got.Equal(frozen) {
		t.Errorf("frozen clock advanced: %v -> %v", frozen, got)
	}

	if err := c.SetMultiplier(-1); err == nil {
		t.Error("expected error for negative multiplier")
	}
}

func TestPauseResume(t *testing.T) {
	wall := &fakeWall{t: time.Unix(0, 0)}
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	c := NewWithSource(start, wall.now)

	wall.advance(5 * time.Minute)
	c.Pause()
	atPause := c.Now()

	wall.advance(30 * time.Minute)
	if got := c.Now(); !got.Equal(atPause) {
		t.Errorf("paused clock advanced: %v -> %v", atPause, got)
	}

	c.Resume()
	wall.advance(2 * time.Minute)
	if got := c.Now(); !got.Equal(atPause.Add(2 * time.Minute)) {
		t.Errorf("resumed clock = %v, want %v", got, atPause.Add(2*time.Minute))
	}
}

func TestSetOverridesDilation(t *testing.T) {
	wall := &fakeWall{t: time.Unix(0, 0)}
	c := NewWithSource(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC), wall.now)
	if err := c.SetMultiplier(10); err != nil {
		t.Fatal(err)
	}
	wall.advance(time.Minute)

	override := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	c.Set(override)
	if got := c.Now(); !got.Equal(override) {
		t.Errorf("Now() right after Set = %v, want %v", got, override)
	}

	// Dilation continues from the override point.
	wall.advance(time.Minute)
	if got := c.Now(); !got.Equal(override.Add(10 * time.Minute)) {
		t.Errorf("Now() 1m after Set at 10x = %v", got)
	}
}
