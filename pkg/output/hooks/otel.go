package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*OTelHook)(nil)

// OTelHook exports one span per scan session to an OpenTelemetry
// collector. Detections and errors become span events.
type OTelHook struct {
	opts           OTelOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu     sync.Mutex
	spans  map[string]trace.Span // scan id -> session span
	closed bool
}

// OTelOptions configures the OpenTelemetry hook behavior.
type OTelOptions struct {
	// Endpoint is the OTLP gRPC endpoint (default "localhost:4317").
	Endpoint string

	// ServiceName is the service name for traces (default "sensinfor").
	ServiceName string

	// Insecure uses a plaintext connection.
	Insecure bool

	// Headers contains additional headers for the OTLP exporter.
	Headers map[string]string

	// ShutdownTimeout bounds flushing on Close (default 5s).
	ShutdownTimeout time.Duration

	// Exporter replaces the OTLP exporter. Spans are exported
	// synchronously when set.
	Exporter sdktrace.SpanExporter
}

// NewOTelHook creates the hook. Without an Exporter it dials the OTLP
// endpoint and installs the provider globally; a collector that is down
// does not block scans.
func NewOTelHook(opts OTelOptions) (*OTelHook, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = duration.MetricsShutdown
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)

	var spanOpt sdktrace.TracerProviderOption
	if opts.Exporter != nil {
		spanOpt = sdktrace.WithSyncer(opts.Exporter)
	} else {
		exporter, err := newOTLPExporter(opts)
		if err != nil {
			return nil, err
		}
		spanOpt = sdktrace.WithBatcher(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		spanOpt,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	if opts.Exporter == nil {
		otel.SetTracerProvider(tp)
	}

	return &OTelHook{
		opts:           opts,
		tracerProvider: tp,
		tracer:         tp.Tracer(defaults.ToolName + "/scanner"),
		spans:          make(map[string]trace.Span),
	}, nil
}

func newOTLPExporter(opts OTelOptions) (sdktrace.SpanExporter, error) {
	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration.DialTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otel: create exporter: %w", err)
	}
	return exporter, nil
}

// OnEvent records the event on the session span.
func (h *OTelHook) OnEvent(ctx context.Context, event events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	switch e := event.(type) {
	case *events.StartEvent:
		h.start(ctx, e)
		return nil
	case *events.CompleteEvent:
		h.complete(e)
		return nil
	}

	span, ok := h.spans[event.ScanID()]
	if !ok {
		return nil
	}
	switch e := event.(type) {
	case *events.ProgressEvent:
		span.SetAttributes(
			attribute.Int("detectors.completed", e.Completed),
			attribute.Int("findings", e.Findings))
	case *events.DetectionEvent:
		if e.Result == nil {
			return nil
		}
		span.AddEvent("sensitive_file_detected", trace.WithAttributes(
			attribute.String("rule_id", e.Result.RuleID),
			attribute.String("url", e.Result.URL),
			attribute.String("category", string(e.Result.Category)),
			attribute.String("severity", string(e.Result.Severity)),
			attribute.String("risk_level", string(e.Result.RiskLevel)),
			attribute.Float64("cvss", e.Result.CVSSScore),
			attribute.Int("status_code", e.Result.Evidence.StatusCode),
		))
	case *events.ErrorEvent:
		span.AddEvent("scan_error", trace.WithAttributes(
			attribute.String("rule_id", e.RuleID),
			attribute.String("message", e.Message),
			attribute.Bool("fatal", e.Fatal),
		))
	}
	return nil
}

func (h *OTelHook) start(ctx context.Context, e *events.StartEvent) {
	_, span := h.tracer.Start(ctx, defaults.ToolName+".scan",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(e.Timestamp()),
		trace.WithAttributes(
			attribute.String("scan_id", e.ScanID()),
			attribute.String("target", e.Target),
			attribute.String("hostname", e.Hostname),
			attribute.String("scan_mode", e.Mode),
			attribute.Int("detectors.total", e.Detectors),
			attribute.Int("concurrency", e.Concurrency),
		))
	h.spans[e.ScanID()] = span
}

func (h *OTelHook) complete(e *events.CompleteEvent) {
	span, ok := h.spans[e.ScanID()]
	if !ok {
		return
	}
	delete(h.spans, e.ScanID())

	span.SetAttributes(
		attribute.String("status", e.Status),
		attribute.Int("findings.total", e.TotalFindings),
		attribute.Float64("risk.average_cvss", e.Risk.AverageCVSS),
		attribute.String("risk.highest_level", string(e.Risk.HighestLevel)),
		attribute.Int64("duration_ms", e.DurationMs),
	)
	for _, sev := range finding.Severities() {
		if n := e.FindingsBySeverity[sev]; n > 0 {
			span.SetAttributes(attribute.Int("findings."+string(sev), n))
		}
	}

	if e.Success() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, e.Error)
	}
	span.End(trace.WithTimestamp(e.Timestamp()))
}

// EventTypes returns nil: the hook receives every event.
func (h *OTelHook) EventTypes() []events.EventType { return nil }

// Close ends any open session span and flushes the provider.
func (h *OTelHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for id, span := range h.spans {
		span.SetStatus(codes.Error, "hook closed before session completed")
		span.End()
		delete(h.spans, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ShutdownTimeout)
	defer cancel()
	if err := h.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("otel: shutdown tracer provider: %w", err)
	}
	return nil
}

// Endpoint returns the OTLP endpoint being used.
func (h *OTelHook) Endpoint() string { return h.opts.Endpoint }

// ServiceName returns the service name being used.
func (h *OTelHook) ServiceName() string { return h.opts.ServiceName }
