// Package events defines the events a scan session emits.
// All events are designed for JSON serialization so writers can stream
// them without knowing the concrete type.
//
// Every event embeds BaseEvent, which carries the type, the timestamp and
// the session id.
package events

import (
	"time"
)

// EventType represents the type of output event.
type EventType string

const (
	// EventTypeStart indicates a session has started.
	EventTypeStart EventType = "start"
	// EventTypeProgress indicates a detector finished.
	EventTypeProgress EventType = "progress"
	// EventTypeDetection indicates a rule matched.
	EventTypeDetection EventType = "detection"
	// EventTypeError indicates a non-fatal problem during the session.
	EventTypeError EventType = "error"
	// EventTypeComplete indicates the session reached a terminal state.
	EventTypeComplete EventType = "complete"
)

// Types returns every event type in emission order.
func Types() []EventType {
	return []EventType{EventTypeStart, EventTypeProgress, EventTypeDetection, EventTypeError, EventTypeComplete}
}

// Event is the base interface for all events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

// NewBase stamps a BaseEvent with the current UTC time.
func NewBase(t EventType, scanID string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now().UTC(), Scan: scanID}
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanID returns the session id that produced this event.
func (e BaseEvent) ScanID() string { return e.Scan }
