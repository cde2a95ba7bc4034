package logging

import "log/slog"

// EnableTrace turns on high-volume debug logs (queue pruning, clock rebases).
// Default is false to reduce noise.
var EnableTrace = false

// TraceDefault logs to the default logger if EnableTrace is true.
func TraceDefault(msg string, args ...any) {
	if EnableTrace {
		slog.Debug(msg, args...)
	}
}
