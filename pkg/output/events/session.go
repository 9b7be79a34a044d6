package events

import (
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/risk"
)

// Session statuses carried by CompleteEvent.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// StartEvent is emitted once the detector set for a session is known.
type StartEvent struct {
	BaseEvent
	Target      string `json:"target"`
	Hostname    string `json:"hostname"`
	Mode        string `json:"scan_mode"`
	Detectors   int    `json:"detectors"`
	Concurrency int    `json:"concurrency"`
}

// ProgressEvent is emitted each time a detector finishes.
type ProgressEvent struct {
	BaseEvent
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Findings   int     `json:"findings"`
}

// DetectionEvent wraps one result delivered to the sink.
type DetectionEvent struct {
	BaseEvent
	Result *finding.Result `json:"result"`
}

// Severity returns the result's severity, or "" for an empty event.
func (e *DetectionEvent) Severity() finding.Severity {
	if e == nil || e.Result == nil {
		return ""
	}
	return e.Result.Severity
}

// ErrorEvent reports a problem that did not end the session.
type ErrorEvent struct {
	BaseEvent
	Target  string `json:"target,omitempty"`
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// CompleteEvent is the terminal event of a session.
type CompleteEvent struct {
	BaseEvent
	Target             string                   `json:"target"`
	Status             string                   `json:"status"`
	TotalFindings      int                      `json:"total_findings"`
	FindingsBySeverity map[finding.Severity]int `json:"findings_by_severity"`
	Risk               risk.Summary             `json:"risk"`
	DurationMs         int64                    `json:"duration_ms"`
	Error              string                   `json:"error,omitempty"`
}

// Success reports whether the session completed normally.
func (e *CompleteEvent) Success() bool { return e.Status == StatusCompleted }

// Progress builds a ProgressEvent with the percentage filled in.
func Progress(scanID string, completed, total, findings int) *ProgressEvent {
	e := &ProgressEvent{
		BaseEvent: NewBase(EventTypeProgress, scanID),
		Completed: completed,
		Total:     total,
		Findings:  findings,
	}
	if total > 0 {
		e.Percentage = float64(completed) * 100 / float64(total)
	}
	return e
}

// Detection wraps r.
func Detection(scanID string, r *finding.Result) *DetectionEvent {
	return &DetectionEvent{BaseEvent: NewBase(EventTypeDetection, scanID), Result: r}
}
