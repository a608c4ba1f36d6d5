// Package logging builds the process-wide structured logger, grounded on
// the teacher's slog.NewTextHandler(os.Stderr, ...) construction used
// throughout its test helpers and cmd/devopsclaw.
package logging

import (
	"log/slog"
	"os"
)

// New returns a text-handler slog.Logger writing to stderr. debug raises
// the level to LevelDebug; otherwise LevelInfo.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
