package api

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripflow/internal/metrics"
	"tripflow/pkg/version"
)

// NewServer creates and configures the HTTP server. It accepts handlers for
// all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, sessionH *SessionHandler, eventsH *EventsHandler, actionH *ActionHandler, replanH *ReplanHandler, feedH *FeedHandler, historyH *HistoryHandler, limiter *Limiter, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Metrics
	metrics.RegisterDefault()
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// 3. Session endpoints
	mux.HandleFunc("POST /api/session/init", sessionH.HandleInit)
	mux.HandleFunc("GET /api/session/{tripID}", sessionH.HandleGet)
	mux.HandleFunc("GET /api/sessions", sessionH.HandleList)
	mux.HandleFunc("POST /api/session/{tripID}/end", sessionH.HandleEnd)

	// 4. Event endpoints
	mux.HandleFunc("POST /api/events/{tripID}", eventsH.HandleInject)
	mux.HandleFunc("POST /api/events/{tripID}/poll", eventsH.HandlePoll)
	mux.HandleFunc("GET /api/events/{tripID}/peek", eventsH.HandlePeek)
	mux.HandleFunc("POST /api/events/{tripID}/{eventID}/dismiss", eventsH.HandleDismiss)
	mux.HandleFunc("POST /api/events/{tripID}/{eventID}/action", eventsH.HandleAction)

	// 5. Action dispatch
	mux.HandleFunc("POST /api/action/{tripID}", actionH.HandleDispatch)

	// 6. Replan endpoints
	mux.HandleFunc("GET /api/replan/{tripID}/check", replanH.HandleCheck)
	mux.HandleFunc("POST /api/replan/{tripID}/apply", replanH.HandleApply)
	mux.HandleFunc("POST /api/replan/{tripID}/undo", replanH.HandleUndo)
	mux.HandleFunc("POST /api/replan/{tripID}/suggest", replanH.HandleSuggest)

	// 7. Live event feed
	if feedH != nil {
		mux.HandleFunc("GET /api/feed/{tripID}", feedH.HandleFeed)
	}

	// 7b. Audit history (only with a configured audit store)
	if historyH != nil {
		mux.HandleFunc("GET /api/history/{tripID}", historyH.HandleHistory)
	}

	// 8. Shutdown endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow the response to flush.
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	var handler http.Handler = mux
	if limiter != nil {
		handler = limiter.Middleware(handler)
	}
	handler = instrument(handler)

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": version.Version})
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade keeps working.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
