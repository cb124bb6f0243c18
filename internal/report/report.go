// Package report renders sync outcomes for the CLI.
package report

import (
	"log/slog"

	"github.com/ThalesMMS/replicant/internal/sync"
)

// Logger reports every outcome through structured logging as it lands and
// prints the aggregate summary when the run ends. It satisfies sync.Sink.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a logging sink
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Report logs one outcome. Deletes and failures log at warn level so they
// stand out even at the default level.
func (l *Logger) Report(out sync.Outcome) {
	attrs := []any{"action", out.Action.String(), "path", out.Path}
	if out.Reason != "" {
		attrs = append(attrs, "reason", out.Reason)
	}

	switch out.Status {
	case sync.StatusFailed:
		attrs = append(attrs, "error", out.Err)
		l.logger.Warn("sync failed", attrs...)
	case sync.StatusSkipped:
		l.logger.Info("sync skipped", attrs...)
	default:
		if out.Action == sync.ActionDelete {
			l.logger.Warn("repository deleted", attrs...)
			return
		}
		l.logger.Info("sync done", attrs...)
	}
}

// Close logs the final counts
func (l *Logger) Close(s sync.Summary) {
	l.logger.Info("run summary",
		"total", s.Total(),
		"cloned", s.Cloned,
		"pulled", s.Pulled,
		"reset", s.Reset,
		"recloned", s.Recloned,
		"deleted", s.Deleted,
		"skipped", s.Skipped,
		"failed", s.Failed)
}
