package writers

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
	"github.com/sensinfor/sensinfor/pkg/risk"
	"github.com/sensinfor/sensinfor/pkg/templateresolver"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*TemplateWriter)(nil)

// TemplateConfig configures the template writer. Exactly one source is
// used, checked in field order.
type TemplateConfig struct {
	// TemplateString is an inline template.
	TemplateString string

	// Template is a file path or the short name of a bundled format
	// ("text", "markdown", "csv"), resolved through templateresolver.
	Template string
}

// TemplateWriter renders a whole session with a Go template. Events are
// buffered and the document is written on Close. Sprig functions are
// available in templates.
type TemplateWriter struct {
	w      io.Writer
	mu     sync.Mutex
	tmpl   *template.Template
	start  *events.StartEvent
	done   *events.CompleteEvent
	scanID string
	found  []*finding.Result
	closed bool
}

// NewTemplateWriter parses the template and returns an error if it is
// missing or invalid.
func NewTemplateWriter(w io.Writer, cfg TemplateConfig) (*TemplateWriter, error) {
	var content string
	switch {
	case cfg.TemplateString != "":
		content = cfg.TemplateString
	case cfg.Template != "":
		data, _, err := templateresolver.Read(cfg.Template, templateresolver.KindOutput)
		if err != nil {
			return nil, err
		}
		content = string(data)
	default:
		return nil, fmt.Errorf("no template specified: set TemplateString or Template")
	}

	tmpl, err := template.New("report").Funcs(funcMap()).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse output template: %w", err)
	}
	return &TemplateWriter{w: w, tmpl: tmpl}, nil
}

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["escapeCSV"] = tmplEscapeCSV
	fm["mdEscape"] = tmplMarkdownEscape
	fm["severityIcon"] = tmplSeverityIcon
	fm["json"] = tmplToJSON
	return fm
}

// Write buffers an event for later rendering.
func (tw *TemplateWriter) Write(event events.Event) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.scanID == "" {
		tw.scanID = event.ScanID()
	}
	switch e := event.(type) {
	case *events.StartEvent:
		tw.start = e
	case *events.DetectionEvent:
		if e.Result != nil {
			tw.found = append(tw.found, e.Result)
		}
	case *events.CompleteEvent:
		tw.done = e
	}
	return nil
}

// Flush is a no-op: the document is rendered on Close.
func (tw *TemplateWriter) Flush() error { return nil }

// Close renders the template and writes it out.
func (tw *TemplateWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.closed {
		return nil
	}
	tw.closed = true

	var buf bytes.Buffer
	if err := tw.tmpl.Execute(&buf, tw.data()); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}
	if _, err := tw.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if closer, ok := tw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent returns true for start, detection and complete events.
func (tw *TemplateWriter) SupportsEvent(eventType events.EventType) bool {
	switch eventType {
	case events.EventTypeStart, events.EventTypeDetection, events.EventTypeComplete:
		return true
	default:
		return false
	}
}

// ReportData is the value templates are executed with.
type ReportData struct {
	ScanID    string
	Target    string
	Hostname  string
	Mode      string
	Status    string
	Error     string
	Timestamp string
	Duration  float64 // seconds

	Results       []*finding.Result
	TotalFindings int

	// Keys are lowercase severity and category names.
	SeverityCounts map[string]int
	CategoryCounts map[string]int
	SeverityOrder  []string

	HighestSeverity string
	Risk            risk.Summary
}

func (tw *TemplateWriter) data() *ReportData {
	d := &ReportData{
		ScanID:         tw.scanID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Results:        tw.found,
		TotalFindings:  len(tw.found),
		SeverityCounts: make(map[string]int),
		CategoryCounts: make(map[string]int),
		Risk:           risk.Aggregate(tw.found),
	}
	for _, sev := range finding.Severities() {
		d.SeverityOrder = append(d.SeverityOrder, string(sev))
	}
	if tw.start != nil {
		d.Target = tw.start.Target
		d.Hostname = tw.start.Hostname
		d.Mode = tw.start.Mode
	}

	for _, r := range tw.found {
		d.SeverityCounts[string(r.Severity)]++
		d.CategoryCounts[string(r.Category)]++
		if d.HighestSeverity == "" || r.Severity.Score() > finding.Severity(d.HighestSeverity).Score() {
			d.HighestSeverity = string(r.Severity)
		}
	}

	if tw.done != nil {
		d.Status = tw.done.Status
		d.Error = tw.done.Error
		d.Duration = float64(tw.done.DurationMs) / 1000
		if d.Target == "" {
			d.Target = tw.done.Target
		}
	}
	return d
}

// tmplEscapeCSV quotes s when it contains a comma, quote or newline.
func tmplEscapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

var mdReplacer = strings.NewReplacer("|", "\\|", "\n", " ", "\r", "", "`", "'")

// tmplMarkdownEscape makes s safe inside a Markdown table cell.
func tmplMarkdownEscape(s string) string {
	return mdReplacer.Replace(s)
}

// tmplSeverityIcon returns an emoji for a severity level.
func tmplSeverityIcon(severity any) string {
	switch strings.ToLower(fmt.Sprint(severity)) {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	case "medium":
		return "🟡"
	case "low":
		return "🟢"
	case "info":
		return "🔵"
	default:
		return "⚪"
	}
}

func tmplToJSON(v any) string {
	b, err := jsonutil.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}
