// Package dispatcher routes session events to writers and hooks.
// Writers persist events (JSONL, console, report templates) while hooks
// feed real-time integrations (logs, metrics, traces).
//
// The dispatcher decouples event generation in the scanner from event
// consumption: a failing consumer is logged and never blocks the others.
package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/output/events"
)

// Writer is the interface for all output writers.
type Writer interface {
	// Write writes an event to the output.
	Write(event events.Event) error

	// Flush ensures all buffered events are written.
	Flush() error

	// Close closes the writer and releases any resources.
	Close() error

	// SupportsEvent returns true if the writer handles this event type.
	SupportsEvent(eventType events.EventType) bool
}

// Hook is the interface for event hooks.
type Hook interface {
	// OnEvent is called for each matching event.
	OnEvent(ctx context.Context, event events.Event) error

	// EventTypes returns the event types this hook handles.
	// Return nil or empty slice to receive all events.
	EventTypes() []events.EventType
}

// Config configures the dispatcher behavior.
type Config struct {
	// Async runs hooks in goroutines. Close waits for them.
	Async bool

	// MinSeverity drops detection events below this severity before they
	// reach hooks. Writers always receive every detection. Empty disables
	// the filter.
	MinSeverity finding.Severity
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for consumer failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher routes events to writers and hooks.
// It is safe for concurrent use.
type Dispatcher struct {
	mu      sync.RWMutex
	writers []Writer
	hooks   []Hook
	closed  bool

	async       bool
	minSeverity finding.Severity
	hookWg      sync.WaitGroup
	logger      *slog.Logger
}

// New creates a new event dispatcher with the given configuration.
func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		async:       cfg.Async,
		minSeverity: cfg.MinSeverity,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterWriter adds a writer to the dispatcher.
func (d *Dispatcher) RegisterWriter(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, w)
}

// RegisterHook adds a hook to the dispatcher.
func (d *Dispatcher) RegisterHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch sends an event to all registered writers and hooks.
// Individual consumer failures are logged and do not stop delivery to the
// rest. It returns ErrClosed once Close has been called.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	et := event.EventType()
	for _, w := range d.writers {
		if !w.SupportsEvent(et) {
			continue
		}
		if err := w.Write(event); err != nil {
			d.logger.Warn("output writer failed",
				slog.String("event", string(et)),
				slog.Any("error", err))
		}
	}

	if !d.notify(event) {
		return nil
	}
	for _, h := range d.hooks {
		if !hookSupportsEvent(h, et) {
			continue
		}
		if d.async {
			d.hookWg.Add(1)
			go func(hook Hook) {
				defer d.hookWg.Done()
				d.callHook(ctx, hook, event)
			}(h)
			continue
		}
		d.callHook(ctx, h, event)
	}
	return nil
}

// notify applies the minimum-severity filter for hooks.
func (d *Dispatcher) notify(event events.Event) bool {
	if d.minSeverity == "" {
		return true
	}
	de, ok := event.(*events.DetectionEvent)
	if !ok {
		return true
	}
	return de.Severity().AtLeast(d.minSeverity)
}

func (d *Dispatcher) callHook(ctx context.Context, h Hook, event events.Event) {
	if err := h.OnEvent(ctx, event); err != nil {
		d.logger.Warn("output hook failed",
			slog.String("event", string(event.EventType())),
			slog.Any("error", err))
	}
}

func hookSupportsEvent(h Hook, eventType events.EventType) bool {
	types := h.EventTypes()
	return len(types) == 0 || slices.Contains(types, eventType)
}

// Flush flushes all registered writers.
func (d *Dispatcher) Flush() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var errs []error
	for _, w := range d.writers {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close waits for in-flight async hooks, then flushes and closes every
// writer and every hook that implements io.Closer. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.hookWg.Wait()

	var errs []error
	for _, w := range d.writers {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range d.hooks {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
