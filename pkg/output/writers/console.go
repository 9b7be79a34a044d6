package writers

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
	"github.com/sensinfor/sensinfor/pkg/ui"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*ConsoleWriter)(nil)

// ConsoleOptions configures the console writer.
type ConsoleOptions struct {
	// Progress redraws a single progress line with carriage returns.
	// Only enable it when the output is a terminal.
	Progress bool

	// Verbose prints extracted secrets and the content preview under each
	// detection.
	Verbose bool

	// Width of the progress bar in cells (default 30).
	BarWidth int
}

// ConsoleWriter prints detections nuclei-style, one line each:
//
//	[high] [leak] [git-config-leak] https://example.com/.git/config [200] [cvss 8.0]
//
// Colors come from pkg/ui and follow its no-color setting.
type ConsoleWriter struct {
	w    io.Writer
	mu   sync.Mutex
	opts ConsoleOptions

	progressShown bool
}

// NewConsoleWriter creates a console writer.
func NewConsoleWriter(w io.Writer, opts ConsoleOptions) *ConsoleWriter {
	if opts.BarWidth <= 0 {
		opts.BarWidth = 30
	}
	return &ConsoleWriter{w: w, opts: opts}
}

// Write renders the event.
func (cw *ConsoleWriter) Write(event events.Event) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	switch e := event.(type) {
	case *events.StartEvent:
		cw.clearProgress()
		ui.PrintInfo(cw.w, fmt.Sprintf("Scanning %s with %d detectors (%s mode)",
			ui.URLStyle.Render(e.Target), e.Detectors, e.Mode))
	case *events.ProgressEvent:
		if !cw.opts.Progress {
			return nil
		}
		fmt.Fprintf(cw.w, "\r%s %d/%d %s %d",
			ui.ProgressBar(e.Percentage, cw.opts.BarWidth),
			e.Completed, e.Total,
			ui.StatLabelStyle.Render("findings:"), e.Findings)
		cw.progressShown = true
	case *events.DetectionEvent:
		if e.Result == nil {
			return nil
		}
		cw.clearProgress()
		cw.writeDetection(e.Result)
	case *events.ErrorEvent:
		cw.clearProgress()
		msg := e.Message
		if e.RuleID != "" {
			msg = e.RuleID + ": " + msg
		}
		ui.PrintWarning(cw.w, msg)
	case *events.CompleteEvent:
		cw.clearProgress()
		cw.writeSummary(e)
	}
	return nil
}

func (cw *ConsoleWriter) clearProgress() {
	if cw.progressShown {
		fmt.Fprint(cw.w, "\r\x1b[2K")
		cw.progressShown = false
	}
}

func (cw *ConsoleWriter) writeDetection(r *finding.Result) {
	var b strings.Builder
	b.WriteString(ui.Bracket(string(r.Severity), ui.SeverityStyle(string(r.Severity))))
	b.WriteByte(' ')
	b.WriteString(ui.Bracket(string(r.Category), ui.CategoryStyle))
	b.WriteByte(' ')
	b.WriteString(ui.Bracket(r.RuleID, ui.StatValueStyle))
	b.WriteByte(' ')
	b.WriteString(ui.URLStyle.Render(r.URL))
	b.WriteByte(' ')
	b.WriteString(ui.Bracket(fmt.Sprint(r.Evidence.StatusCode), ui.StatusCodeStyle(r.Evidence.StatusCode)))
	b.WriteByte(' ')
	b.WriteString(ui.Bracket(fmt.Sprintf("cvss %.1f", r.CVSSScore), ui.SeverityStyle(string(r.RiskLevel))))
	fmt.Fprintln(cw.w, b.String())

	if !cw.opts.Verbose {
		return
	}
	if x := r.Evidence.Extracted; x != nil {
		for _, s := range x.Secrets {
			fmt.Fprintf(cw.w, "    %s %s %s\n", ui.MutedStyle.Render("secret"), s.Type, s.Value)
		}
		for _, ip := range x.InternalIPs {
			fmt.Fprintf(cw.w, "    %s %s\n", ui.MutedStyle.Render("internal ip"), ip)
		}
		for _, ep := range x.APIEndpoints {
			fmt.Fprintf(cw.w, "    %s %s\n", ui.MutedStyle.Render("endpoint"), ep)
		}
	}
	if p := r.Evidence.ContentPreview; p != "" {
		first, _, _ := strings.Cut(p, "\n")
		fmt.Fprintf(cw.w, "    %s %s\n", ui.MutedStyle.Render("preview"), first)
	}
}

func (cw *ConsoleWriter) writeSummary(e *events.CompleteEvent) {
	if !e.Success() {
		msg := "Scan " + e.Status
		if e.Error != "" {
			msg += ": " + e.Error
		}
		ui.PrintError(cw.w, msg)
		return
	}

	parts := make([]string, 0, len(finding.Severities()))
	for _, sev := range finding.Severities() {
		if n := e.FindingsBySeverity[sev]; n > 0 {
			parts = append(parts, ui.SeverityStyle(string(sev)).Render(fmt.Sprintf("%d %s", n, sev)))
		}
	}
	msg := fmt.Sprintf("Scan complete in %.1fs: %d findings", float64(e.DurationMs)/1000, e.TotalFindings)
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	if e.TotalFindings > 0 {
		msg += fmt.Sprintf(", highest risk %s, average CVSS %.1f", e.Risk.HighestLevel, e.Risk.AverageCVSS)
	}
	ui.PrintSuccess(cw.w, msg)
}

// Flush is a no-op: output is unbuffered.
func (cw *ConsoleWriter) Flush() error { return nil }

// Close leaves the underlying writer open; it is usually stdout.
func (cw *ConsoleWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.clearProgress()
	return nil
}

// SupportsEvent returns true for every event type.
func (cw *ConsoleWriter) SupportsEvent(events.EventType) bool { return true }
