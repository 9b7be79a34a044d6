package scanner

import (
	"maps"
	"slices"
	"time"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/events"
	"github.com/sensinfor/sensinfor/pkg/risk"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScanning  Status = "scanning"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Done reports whether s is terminal.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// eventStatus maps a terminal status onto the CompleteEvent vocabulary.
func (s Status) eventStatus() string {
	switch s {
	case StatusCompleted:
		return events.StatusCompleted
	case StatusCancelled:
		return events.StatusStopped
	default:
		return events.StatusFailed
	}
}

// Session is a snapshot of one scan. Values returned by the Scanner are
// copies and safe to keep.
type Session struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Hostname string `json:"hostname"`
	Mode     string `json:"scan_mode"`
	Status   Status `json:"status"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`

	TotalRules         int                      `json:"total_rules"`
	CompletedRules     int                      `json:"completed_rules"`
	TotalFindings      int                      `json:"total_findings"`
	Duplicates         int                      `json:"duplicates"`
	Errors             int                      `json:"errors"`
	FindingsBySeverity map[finding.Severity]int `json:"findings_by_severity"`
	Risk               risk.Summary             `json:"risk"`

	Error   string            `json:"error,omitempty"`
	Results []*finding.Result `json:"results,omitempty"`
}

// Duration is the elapsed scan time, measured to now while running.
func (s *Session) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.CompletedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

func (s *Session) clone() Session {
	cp := *s
	cp.FindingsBySeverity = maps.Clone(s.FindingsBySeverity)
	cp.Results = slices.Clone(s.Results)
	return cp
}
