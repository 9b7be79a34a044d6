package hooks

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

const scanID = "scan-42"

func lifecycle(status, errMsg string) []events.Event {
	return []events.Event{
		&events.StartEvent{
			BaseEvent:   events.NewBase(events.EventTypeStart, scanID),
			Target:      "https://shop.example/app/",
			Hostname:    "shop.example",
			Mode:        "standard",
			Detectors:   2,
			Concurrency: 5,
		},
		events.Progress(scanID, 1, 2, 0),
		events.Detection(scanID, &finding.Result{
			RuleID:    "git-config-leak",
			URL:       "https://shop.example/.git/config",
			Hostname:  "shop.example",
			Category:  finding.CategoryLeak,
			Severity:  finding.High,
			RiskLevel: finding.RiskHigh,
			CVSSScore: 8,
			Evidence:  finding.Evidence{StatusCode: 200},
		}),
		&events.ErrorEvent{BaseEvent: events.NewBase(events.EventTypeError, scanID), RuleID: "env-file", Message: "timeout"},
		events.Progress(scanID, 2, 2, 1),
		&events.CompleteEvent{
			BaseEvent:          events.NewBase(events.EventTypeComplete, scanID),
			Target:             "https://shop.example/app/",
			Status:             status,
			TotalFindings:      1,
			FindingsBySeverity: map[finding.Severity]int{finding.High: 1},
			DurationMs:         1500,
			Error:              errMsg,
		},
	}
}

func feed(t *testing.T, h interface {
	OnEvent(context.Context, events.Event) error
}, evs []events.Event) {
	t.Helper()
	for _, e := range evs {
		require.NoError(t, h.OnEvent(context.Background(), e))
	}
}

func TestLoggerHook(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewLoggerHook(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.Nil(t, h.EventTypes())
	feed(t, h, lifecycle(events.StatusCompleted, ""))

	out := buf.String()
	assert.Contains(t, out, `msg="scan started"`)
	assert.Contains(t, out, "scan_id=scan-42")
	assert.Contains(t, out, `level=WARN msg="sensitive file detected"`)
	assert.Contains(t, out, "rule=git-config-leak")
	assert.Contains(t, out, `msg="scan error"`)
	assert.Contains(t, out, `level=DEBUG msg="scan progress"`)
	assert.Contains(t, out, `msg="scan complete"`)

	buf.Reset()
	feed(t, h, lifecycle(events.StatusFailed, "target unreachable")[5:])
	assert.Contains(t, buf.String(), `level=ERROR msg="scan failed"`)
	assert.Contains(t, buf.String(), `error="target unreachable"`)
}

func TestLoggerHook_NilLogger(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, NewLoggerHook(nil).logger)
}

func scrape(t *testing.T, h *PrometheusHook) string {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusHook_Metrics(t *testing.T) {
	t.Parallel()

	h, err := newPrometheusHook(PrometheusOptions{})
	require.NoError(t, err)
	assert.Equal(t, ":9090", h.opts.Addr)
	assert.Equal(t, "/metrics", h.opts.Path)
	assert.Empty(t, h.MetricsAddr())

	evs := lifecycle(events.StatusCompleted, "")
	feed(t, h, evs[:1])
	assert.Contains(t, scrape(t, h), "sensinfor_active_sessions 1")

	feed(t, h, evs[1:])
	out := scrape(t, h)
	assert.Contains(t, out, `sensinfor_findings_total{category="leak",host="shop.example",severity="high"} 1`)
	assert.Contains(t, out, `sensinfor_detectors_completed_total{host="shop.example"} 2`)
	assert.Contains(t, out, `sensinfor_errors_total{host="shop.example"} 1`)
	assert.Contains(t, out, `sensinfor_sessions_total{status="completed"} 1`)
	assert.Contains(t, out, "sensinfor_active_sessions 0")
	assert.Contains(t, out, `sensinfor_session_duration_seconds_sum{status="completed"} 1.5`)
	assert.Contains(t, out, `sensinfor_cvss_score_count{category="leak"} 1`)
}

func TestPrometheusHook_Server(t *testing.T) {
	t.Parallel()

	h, err := NewPrometheusHook(PrometheusOptions{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(h.MetricsAddr())
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.NoError(t, h.OnEvent(context.Background(), lifecycle(events.StatusCompleted, "")[0]), "events after close are ignored")
}

func newTestOTel(t *testing.T) (*OTelHook, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	h, err := NewOTelHook(OTelOptions{Exporter: exp})
	require.NoError(t, err)
	return h, exp
}

func attrs(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestOTelHook_Defaults(t *testing.T) {
	t.Parallel()

	h, _ := newTestOTel(t)
	defer h.Close()
	assert.Equal(t, "sensinfor", h.ServiceName())
	assert.Equal(t, "localhost:4317", h.Endpoint())
	assert.Nil(t, h.EventTypes())
}

func TestOTelHook_SessionSpan(t *testing.T) {
	t.Parallel()

	h, exp := newTestOTel(t)
	feed(t, h, lifecycle(events.StatusCompleted, ""))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "sensinfor.scan", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)

	a := attrs(span.Attributes)
	assert.Equal(t, "scan-42", a["scan_id"].AsString())
	assert.Equal(t, int64(1), a["findings.total"].AsInt64())
	assert.Equal(t, int64(1), a["findings.high"].AsInt64())
	assert.Equal(t, "completed", a["status"].AsString())

	require.Len(t, span.Events, 2)
	assert.Equal(t, "sensitive_file_detected", span.Events[0].Name)
	assert.Equal(t, "git-config-leak", attrs(span.Events[0].Attributes)["rule_id"].AsString())
	assert.Equal(t, "scan_error", span.Events[1].Name)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}

func TestOTelHook_FailedSession(t *testing.T) {
	t.Parallel()

	h, exp := newTestOTel(t)
	feed(t, h, lifecycle(events.StatusFailed, "target unreachable"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "target unreachable", spans[0].Status.Description)
	require.NoError(t, h.Close())
}

func TestOTelHook_EventsWithoutStartAreIgnored(t *testing.T) {
	t.Parallel()

	h, exp := newTestOTel(t)
	feed(t, h, lifecycle(events.StatusCompleted, "")[1:])
	assert.Empty(t, exp.GetSpans())
	require.NoError(t, h.Close())
}

func TestOTelHook_CloseEndsOpenSpans(t *testing.T) {
	t.Parallel()

	h, exp := newTestOTel(t)
	feed(t, h, lifecycle(events.StatusCompleted, "")[:2])
	assert.Empty(t, exp.GetSpans())

	h.mu.Lock()
	open := len(h.spans)
	h.mu.Unlock()
	assert.Equal(t, 1, open)

	// The in-memory exporter is reset on shutdown, so only the
	// bookkeeping can be checked afterwards.
	require.NoError(t, h.Close())
	assert.Empty(t, h.spans)
}
