package scanner

import (
	"context"
	"slices"
	"sync"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/dispatcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

// Sink receives every non-duplicate result of a session.
type Sink interface {
	Emit(ctx context.Context, r *finding.Result) error
}

// Observer is implemented by sinks that also want session lifecycle
// events (start, progress, error, complete).
type Observer interface {
	Observe(ctx context.Context, e events.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *finding.Result) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, r *finding.Result) error { return f(ctx, r) }

// EventSink routes results and lifecycle events into a dispatcher.
type EventSink struct {
	D *dispatcher.Dispatcher
}

var (
	_ Sink     = (*EventSink)(nil)
	_ Observer = (*EventSink)(nil)
	_ Sink     = (*Collector)(nil)
)

// NewEventSink wraps d.
func NewEventSink(d *dispatcher.Dispatcher) *EventSink {
	return &EventSink{D: d}
}

// Emit dispatches r as a detection event of its session.
func (s *EventSink) Emit(ctx context.Context, r *finding.Result) error {
	return s.D.Dispatch(ctx, events.Detection(r.SessionID, r))
}

// Observe dispatches e unchanged.
func (s *EventSink) Observe(ctx context.Context, e events.Event) error {
	return s.D.Dispatch(ctx, e)
}

// Collector keeps emitted results in memory.
type Collector struct {
	mu      sync.Mutex
	results []*finding.Result
}

// Emit records r.
func (c *Collector) Emit(_ context.Context, r *finding.Result) error {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
	return nil
}

// Results returns the recorded results in emit order.
func (c *Collector) Results() []*finding.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.results)
}

// discard drops everything.
type discard struct{}

func (discard) Emit(context.Context, *finding.Result) error { return nil }
