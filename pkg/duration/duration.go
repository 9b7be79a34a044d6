// Package duration provides canonical time constants for the module.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ProbeStandard)
package duration

import "time"

// ============================================================================
// PROBE TIMEOUTS
// ============================================================================
//
// One per scan mode. A probe that exceeds its timeout is a failed probe,
// never a failed session.
// ============================================================================

const (
	// ProbeFast is the per-probe timeout in fast mode (3s).
	ProbeFast = 3 * time.Second

	// ProbeStandard is the default per-probe timeout (5s).
	ProbeStandard = 5 * time.Second

	// ProbeThorough is the per-probe timeout in thorough mode (10s).
	ProbeThorough = 10 * time.Second
)

// ============================================================================
// HTTP CLIENT
// ============================================================================

const (
	// HTTPClient bounds a whole request including redirects (30s).
	HTTPClient = 30 * time.Second

	// DialTimeout bounds establishing a connection (10s).
	DialTimeout = 10 * time.Second

	// TLSHandshake bounds the TLS handshake (10s).
	TLSHandshake = 10 * time.Second

	// IdleConn is how long idle connections stay pooled (90s).
	IdleConn = 90 * time.Second
)

// ============================================================================
// PACING
// ============================================================================

const (
	// RequestDelay is the default gap between probes (100ms).
	RequestDelay = 100 * time.Millisecond

	// RetryDelay is the base linear backoff between probe retries (1s).
	RetryDelay = 1 * time.Second

	// RetryMaxDelay caps a single backoff (30s).
	RetryMaxDelay = 30 * time.Second
)

// ============================================================================
// SHUTDOWN
// ============================================================================

const (
	// Shutdown bounds flushing writers and hooks at exit (10s).
	Shutdown = 10 * time.Second

	// MetricsShutdown bounds stopping the metrics server (5s).
	MetricsShutdown = 5 * time.Second
)
