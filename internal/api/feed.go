package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tripflow/pkg/engine"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// FeedHandler streams delivered events over a websocket so clients don't have
// to poll. Pushed events are consumed from the queue like any other poll.
type FeedHandler struct {
	engine   *engine.Engine
	interval time.Duration
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(eng *engine.Engine) *FeedHandler {
	return &FeedHandler{engine: eng, interval: 2 * time.Second}
}

// HandleFeed upgrades the connection and pushes events as they clear the
// pipeline. The feed closes when the client disconnects or the session ends.
// GET /api/feed/{tripID}
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripID")
	if _, err := h.engine.State(tripID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Drain the read side so close frames and pongs are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-ticker.C:
			events, err := h.engine.Poll(tripID, 0)
			if err != nil {
				// Session ended; tell the client and stop.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(5*time.Second))
				return
			}
			for _, ev := range events {
				if err := conn.WriteJSON(ev); err != nil {
					slog.Debug("Feed write failed", "trip", tripID, "error", err)
					return
				}
			}
		}
	}
}
