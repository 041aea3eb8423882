package logger

import (
	"log/slog"
	"os"
)

// New creates a structured JSON logger. Debug lowers the level so the
// processor's per-event logging becomes visible.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
