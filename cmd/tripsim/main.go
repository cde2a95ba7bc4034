// Package main is a day-runner that drives a tripflow server through a
// synthetic itinerary: it starts a session, accelerates the clock, injects
// disruptions, and prints every event and proposal the engine produces.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"tripflow/pkg/engine"
	"tripflow/pkg/eventq"
	"tripflow/pkg/model"
	"tripflow/pkg/reshuffle"
)

var (
	serverAddr = flag.String("server", "localhost:1872", "tripflow server address")
	tripID     = flag.String("trip", "sim-lisbon", "trip id to run")
	speed      = flag.Float64("speed", 60, "clock multiplier for the simulated day")
	delay      = flag.Int("delay", 25, "minutes of delay to inject mid-morning")
)

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	base := fmt.Sprintf("http://%s", *serverAddr)

	fmt.Printf("Starting session %q against %s\n", *tripID, base)
	if err := post(ctx, base+"/api/session/init", map[string]any{
		"trip_id":   *tripID,
		"day_index": 0,
		"schedule":  sampleSchedule(),
	}, nil); err != nil {
		return fmt.Errorf("session init: %w", err)
	}

	// Watch the event feed in the background.
	feedDone := make(chan struct{})
	go watchFeed(ctx, feedDone)

	if err := post(ctx, actionURL(base), engine.Action{Type: "set_speed", Factor: *speed}, nil); err != nil {
		return fmt.Errorf("set_speed: %w", err)
	}
	fmt.Printf("Clock running at %gx\n", *speed)

	// Let the briefing land, then report a delay.
	sleep(ctx, 3*time.Second)
	fmt.Printf("Injecting %d minutes of delay\n", *delay)
	var res engine.Result
	if err := post(ctx, actionURL(base), engine.Action{Type: "add_delay", Minutes: *delay}, &res); err != nil {
		return fmt.Errorf("add_delay: %w", err)
	}

	if len(res.Triggers) > 0 {
		trig := res.Triggers[0]
		fmt.Printf("Trigger fired: %s (%s)\n", trig.Kind, trig.Message)
		if len(trig.Strategies) > 0 {
			applyAndUndo(ctx, base, trig.Strategies[0])
		}
	} else {
		fmt.Println("No trigger fired; delay stayed under the threshold")
	}

	// Inject a weather alert against the afternoon slot.
	if err := post(ctx, base+"/api/events/"+*tripID, map[string]any{
		"kind": "weather_alert", "weather": "heavy rain", "slot_id": "s3",
	}, nil); err != nil {
		return fmt.Errorf("weather inject: %w", err)
	}

	sleep(ctx, 5*time.Second)

	var counters map[string]any
	if err := post(ctx, base+"/api/session/"+*tripID+"/end", nil, &counters); err != nil {
		return fmt.Errorf("session end: %w", err)
	}
	fmt.Printf("Session ended: %v\n", counters)

	select {
	case <-feedDone:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func applyAndUndo(ctx context.Context, base string, strat reshuffle.Strategy) {
	var applied reshuffle.ApplyResult
	err := post(ctx, base+"/api/replan/"+*tripID+"/apply", map[string]any{"strategy": strat}, &applied)
	if err != nil || !applied.Success {
		fmt.Printf("Apply %s failed: %v %s\n", strat.Kind, err, applied.Message)
		return
	}
	fmt.Printf("Applied %s, undo token %s\n", strat.Kind, applied.UndoToken)
	for _, c := range applied.Changes {
		fmt.Printf("  %s: %s\n", c.SlotID, c.Detail)
	}

	var undone reshuffle.UndoResult
	err = post(ctx, base+"/api/replan/"+*tripID+"/undo", map[string]any{"token": applied.UndoToken}, &undone)
	if err != nil {
		fmt.Printf("Undo failed: %v\n", err)
		return
	}
	fmt.Printf("Undo: %s\n", undone.Message)

	// Re-apply so the rest of the day runs on the adjusted plan.
	if err := post(ctx, base+"/api/replan/"+*tripID+"/apply", map[string]any{"strategy": strat}, &applied); err == nil && applied.Success {
		fmt.Printf("Re-applied %s for the rest of the run\n", strat.Kind)
	}
}

func watchFeed(ctx context.Context, done chan struct{}) {
	defer close(done)
	url := fmt.Sprintf("ws://%s/api/feed/%s", *serverAddr, *tripID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		fmt.Printf("feed unavailable: %v\n", err)
		return
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var ev eventq.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", ev.Priority, ev.Title, ev.Message)
	}
}

func sampleSchedule() model.DaySchedule {
	at := func(h, m int) time.Time {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, time.Local)
	}
	return model.DaySchedule{
		TripID:   *tripID,
		DayIndex: 0,
		City:     "Lisbon",
		Slots: []model.Slot{
			{ID: "s1", Activity: model.Activity{ID: "a1", Name: "São Jorge Castle", Rating: 4.7}, Start: at(9, 0), End: at(11, 0), Rigidity: 0.3},
			{ID: "s2", Activity: model.Activity{ID: "a2", Name: "Time Out Market", Rating: 4.4, Location: &model.Coordinate{Lat: 38.7071, Lon: -9.1355}}, Start: at(11, 30), End: at(13, 0), Rigidity: 0.5},
			{ID: "s3", Activity: model.Activity{ID: "a3", Name: "Tram 28 Ride", Rating: 4.2}, Start: at(14, 0), End: at(16, 0), Rigidity: 0.2},
			{ID: "s4", Activity: model.Activity{ID: "a4", Name: "Miradouro Sunset", Rating: 4.8}, Start: at(16, 30), End: at(18, 0), Rigidity: 0.1},
		},
	}
}

func actionURL(base string) string {
	return base + "/api/action/" + *tripID
}

func post(ctx context.Context, url string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
