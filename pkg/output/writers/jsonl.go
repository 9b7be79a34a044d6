// Package writers provides dispatcher.Writer implementations: JSONL for
// pipelines, a colored console stream for humans and Go templates for
// reports.
package writers

import (
	"io"
	"sync"

	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JSONLWriter)(nil)

// JSONLWriter writes events as newline-delimited JSON. Each line parses
// on its own, so jq and streaming consumers can follow a running scan.
type JSONLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	opts    JSONLOptions
	encoder *jsonutil.Encoder
}

// JSONLOptions configures the JSONL writer behavior.
type JSONLOptions struct {
	// OnlyDetections drops every event except detections.
	OnlyDetections bool

	// OmitEvidence strips the evidence block from detections.
	OmitEvidence bool

	// Pretty enables indented JSON output. Not JSONL compliant.
	Pretty bool
}

// NewJSONLWriter creates a new JSONL writer that writes to w.
func NewJSONLWriter(w io.Writer, opts JSONLOptions) *JSONLWriter {
	encoder := jsonutil.NewStreamEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("", "  ")
	}
	return &JSONLWriter{w: w, opts: opts, encoder: encoder}
}

// Write writes an event as a single JSON line.
func (jw *JSONLWriter) Write(event events.Event) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.opts.OmitEvidence {
		if de, ok := event.(*events.DetectionEvent); ok && de.Result != nil {
			filtered := *de
			r := *de.Result
			r.Evidence.ContentPreview = ""
			r.Evidence.Headers = nil
			r.Evidence.Extracted = nil
			filtered.Result = &r
			return jw.encoder.Encode(&filtered)
		}
	}
	return jw.encoder.Encode(event)
}

// Flush is a no-op: every event is written immediately.
func (jw *JSONLWriter) Flush() error { return nil }

// Close closes the underlying writer if it implements io.Closer.
func (jw *JSONLWriter) Close() error {
	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent reports whether the event passes the OnlyDetections filter.
func (jw *JSONLWriter) SupportsEvent(eventType events.EventType) bool {
	return !jw.opts.OnlyDetections || eventType == events.EventTypeDetection
}
