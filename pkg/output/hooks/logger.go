// Package hooks provides dispatcher hooks that mirror session events into
// logs, Prometheus metrics and OpenTelemetry traces.
package hooks

import (
	"context"
	"log/slog"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*LoggerHook)(nil)

// orDefault returns l if non-nil, otherwise slog.Default().
func orDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// LoggerHook writes one structured log record per event.
// Progress is logged at debug level; detections at high or critical
// severity are logged as warnings.
type LoggerHook struct {
	logger *slog.Logger
}

// NewLoggerHook returns a hook writing to l, or slog.Default() when nil.
func NewLoggerHook(l *slog.Logger) *LoggerHook {
	return &LoggerHook{logger: orDefault(l)}
}

// OnEvent logs the event.
func (h *LoggerHook) OnEvent(ctx context.Context, event events.Event) error {
	scan := slog.String("scan_id", event.ScanID())
	switch e := event.(type) {
	case *events.StartEvent:
		h.logger.InfoContext(ctx, "scan started", scan,
			slog.String("target", e.Target),
			slog.String("mode", e.Mode),
			slog.Int("detectors", e.Detectors),
			slog.Int("concurrency", e.Concurrency))
	case *events.ProgressEvent:
		h.logger.DebugContext(ctx, "scan progress", scan,
			slog.Int("completed", e.Completed),
			slog.Int("total", e.Total),
			slog.Int("findings", e.Findings))
	case *events.DetectionEvent:
		if e.Result == nil {
			return nil
		}
		level := slog.LevelInfo
		if e.Severity().AtLeast(finding.High) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "sensitive file detected", scan,
			slog.String("rule", e.Result.RuleID),
			slog.String("url", e.Result.URL),
			slog.String("severity", string(e.Result.Severity)),
			slog.String("risk", string(e.Result.RiskLevel)),
			slog.Float64("cvss", e.Result.CVSSScore))
	case *events.ErrorEvent:
		h.logger.WarnContext(ctx, "scan error", scan,
			slog.String("target", e.Target),
			slog.String("rule", e.RuleID),
			slog.String("message", e.Message),
			slog.Bool("fatal", e.Fatal))
	case *events.CompleteEvent:
		attrs := []any{scan,
			slog.String("target", e.Target),
			slog.String("status", e.Status),
			slog.Int("findings", e.TotalFindings),
			slog.Int64("duration_ms", e.DurationMs)}
		if e.Error != "" {
			h.logger.ErrorContext(ctx, "scan failed", append(attrs, slog.String("error", e.Error))...)
			return nil
		}
		h.logger.InfoContext(ctx, "scan complete", attrs...)
	}
	return nil
}

// EventTypes returns nil: the logger receives every event.
func (h *LoggerHook) EventTypes() []events.EventType { return nil }
