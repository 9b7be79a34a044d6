package writers

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
	"github.com/sensinfor/sensinfor/pkg/risk"
	"github.com/sensinfor/sensinfor/pkg/ui"
)

const scanID = "scan-7"

func sampleResult() *finding.Result {
	return &finding.Result{
		ID:          "r-1",
		URL:         "https://shop.example/.env",
		Hostname:    "shop.example",
		RuleID:      "env-file",
		RuleName:    "Environment file",
		Title:       "Exposed .env file",
		Category:    finding.CategoryConfig,
		Severity:    finding.Critical,
		RiskLevel:   finding.RiskCritical,
		CVSSScore:   9.0,
		Remediation: "Remove the file from the web root",
		Evidence: finding.Evidence{
			Method:         "GET",
			StatusCode:     200,
			ContentType:    "text/plain",
			ContentLength:  64,
			ContentPreview: "DB_PASSWORD=Su****!\nDEBUG=true",
			Headers:        map[string]string{"server": "nginx"},
			Extracted: &finding.ExtractedData{
				Secrets:     []finding.Secret{{Type: "password", Value: "Su****!", Context: "DB_PASSWORD=<masked>"}},
				InternalIPs: []string{"10.0.3.7"},
			},
		},
		DetectedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func session(results ...*finding.Result) []events.Event {
	evs := []events.Event{&events.StartEvent{
		BaseEvent: events.NewBase(events.EventTypeStart, scanID),
		Target:    "https://shop.example/",
		Hostname:  "shop.example",
		Mode:      "standard",
		Detectors: 4,
	}}
	for i, r := range results {
		evs = append(evs, events.Progress(scanID, i+1, 4, i+1), events.Detection(scanID, r))
	}
	bySev := map[finding.Severity]int{}
	for _, r := range results {
		bySev[r.Severity]++
	}
	return append(evs, &events.CompleteEvent{
		BaseEvent:          events.NewBase(events.EventTypeComplete, scanID),
		Target:             "https://shop.example/",
		Status:             events.StatusCompleted,
		TotalFindings:      len(results),
		FindingsBySeverity: bySev,
		Risk:               risk.Aggregate(results),
		DurationMs:         2500,
	})
}

func writeAll(t *testing.T, w dispatcher.Writer, evs []events.Event) {
	t.Helper()
	for _, e := range evs {
		if w.SupportsEvent(e.EventType()) {
			require.NoError(t, w.Write(e))
		}
	}
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())
}

func TestJSONLWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeAll(t, NewJSONLWriter(&buf, JSONLOptions{}), session(sampleResult()))

	var types []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, jsonutil.Unmarshal(sc.Bytes(), &line))
		types = append(types, line["type"].(string))
		assert.Equal(t, scanID, line["scan_id"])
	}
	assert.Equal(t, []string{"start", "progress", "detection", "complete"}, types)
}

func TestJSONLWriter_Options(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := sampleResult()
	writeAll(t, NewJSONLWriter(&buf, JSONLOptions{OnlyDetections: true, OmitEvidence: true}), session(r))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"detection"`)
	assert.NotContains(t, lines[0], "content_preview")
	assert.NotContains(t, lines[0], "extracted_data")
	assert.Contains(t, lines[0], `"status_code":200`)

	assert.NotNil(t, r.Evidence.Extracted, "the original result is not modified")
}

func TestConsoleWriter(t *testing.T) {
	ui.SetNoColor(true)

	var buf bytes.Buffer
	writeAll(t, NewConsoleWriter(&buf, ConsoleOptions{Verbose: true}), session(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "Scanning https://shop.example/ with 4 detectors (standard mode)")
	assert.Contains(t, out, "[critical] [config] [env-file] https://shop.example/.env [200] [cvss 9.0]")
	assert.Contains(t, out, "secret password Su****!")
	assert.Contains(t, out, "internal ip 10.0.3.7")
	assert.Contains(t, out, "preview DB_PASSWORD=Su****!")
	assert.Contains(t, out, "Scan complete in 2.5s: 1 findings (1 critical), highest risk critical, average CVSS 9.0")
	assert.NotContains(t, out, "\r", "progress is off")
}

func TestConsoleWriter_ProgressAndFailure(t *testing.T) {
	ui.SetNoColor(true)

	var buf bytes.Buffer
	cw := NewConsoleWriter(&buf, ConsoleOptions{Progress: true, BarWidth: 4})
	require.NoError(t, cw.Write(events.Progress(scanID, 2, 4, 0)))
	assert.Contains(t, buf.String(), "\r")
	assert.Contains(t, buf.String(), "2/4")

	require.NoError(t, cw.Write(&events.ErrorEvent{BaseEvent: events.NewBase(events.EventTypeError, scanID), RuleID: "git-head", Message: "timeout"}))
	assert.Contains(t, buf.String(), "\r\x1b[2K", "progress line is cleared before other output")
	assert.Contains(t, buf.String(), "[!] git-head: timeout")

	require.NoError(t, cw.Write(&events.CompleteEvent{
		BaseEvent: events.NewBase(events.EventTypeComplete, scanID),
		Status:    events.StatusFailed,
		Error:     "target unreachable",
	}))
	assert.Contains(t, buf.String(), "[X] Scan failed: target unreachable")
	require.NoError(t, cw.Close())
}

func TestTemplateWriter_Builtins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want []string
	}{
		{"text", []string{
			"Target:    https://shop.example/",
			"Findings: 1",
			"[CRITICAL] Exposed .env file",
			"Secrets:  1",
			"Fix:      Remove the file from the web root",
		}},
		{"markdown", []string{
			"# sensinfor report: https://shop.example/",
			"| 🔴 Critical | 1 |",
			"### 🔴 Exposed .env file",
			"| password | `Su****!` | DB_PASSWORD=<masked> |",
			"Internal addresses: 10.0.3.7",
		}},
		{"csv", []string{
			"id,url,rule_id,category,severity",
			"r-1,https://shop.example/.env,env-file,config,critical,critical,9.0,200,64,1,2026-03-01T12:00:00Z",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			tw, err := NewTemplateWriter(&buf, TemplateConfig{Template: tt.name})
			require.NoError(t, err)
			writeAll(t, tw, session(sampleResult()))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestTemplateWriter_NoFindings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw, err := NewTemplateWriter(&buf, TemplateConfig{Template: "text"})
	require.NoError(t, err)
	writeAll(t, tw, session())
	assert.Contains(t, buf.String(), "No sensitive files were found.")
}

func TestTemplateWriter_Inline(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw, err := NewTemplateWriter(&buf, TemplateConfig{
		TemplateString: `{{ .ScanID }} {{ .HighestSeverity }} {{ .Risk.HighestLevel }} {{ index .CategoryCounts "config" }} {{ .Duration }}`,
	})
	require.NoError(t, err)
	writeAll(t, tw, session(sampleResult()))
	assert.Equal(t, "scan-7 critical critical 1 2.5", buf.String())
	require.NoError(t, tw.Close(), "close is idempotent")
}

func TestTemplateWriter_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{})
	assert.Error(t, err)

	_, err = NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{TemplateString: "{{ .Broken "})
	assert.Error(t, err)

	_, err = NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{Template: "pdf"})
	assert.Error(t, err)
}

func TestTemplateHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", tmplEscapeCSV("plain"))
	assert.Equal(t, `"a,b"`, tmplEscapeCSV("a,b"))
	assert.Equal(t, `"say ""hi"""`, tmplEscapeCSV(`say "hi"`))
	assert.Equal(t, `a\|b c`, tmplMarkdownEscape("a|b\nc"))
	assert.Equal(t, "🔴", tmplSeverityIcon(finding.Critical))
	assert.Equal(t, "⚪", tmplSeverityIcon("bogus"))
	assert.Equal(t, `{"a":1}`, tmplToJSON(map[string]int{"a": 1}))
}
