// Package defaults provides canonical default values for the whole
// module. Scan modes, config loading and the CLI all read from here.
//
// Usage:
//
//	cfg.Concurrency = defaults.ConcurrencyStandard
//	req.Header.Set("User-Agent", defaults.UserAgent)
package defaults

// ToolName is the binary and metrics namespace.
const ToolName = "sensinfor"

// Version is the current sensinfor version.
const Version = "1.3.0"

// ============================================================================
// SCAN MODES
// ============================================================================

const (
	// ModeFast probes only high-value rules with wide fan-out.
	ModeFast = "fast"

	// ModeStandard probes every enabled rule.
	ModeStandard = "standard"

	// ModeThorough probes everything and enables JavaScript analysis.
	ModeThorough = "thorough"
)

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================

const (
	// ConcurrencyFast is the worker count for fast mode (10).
	ConcurrencyFast = 10

	// ConcurrencyStandard is the default worker count (5).
	ConcurrencyStandard = 5

	// ConcurrencyThorough is the worker count for thorough mode (3).
	ConcurrencyThorough = 3

	// ConcurrencyMax caps user-supplied concurrency (50).
	ConcurrencyMax = 50
)

// ============================================================================
// RETRY SETTINGS
// ============================================================================

const (
	// RetryNone disables retries (0).
	RetryNone = 0

	// RetryStandard is the default probe retry count (2).
	RetryStandard = 2

	// RetryMax caps user-supplied retry counts (10).
	RetryMax = 10
)

// ============================================================================
// BODY LIMITS
// ============================================================================

const (
	// MaxBodySize caps probe response bodies (1MB).
	MaxBodySize = 1024 * 1024

	// PreviewSize is the evidence content preview length in characters.
	PreviewSize = 500

	// MaxRedirects is how many redirects a probe follows.
	MaxRedirects = 5
)

// ============================================================================
// DETECTION THRESHOLDS
// ============================================================================

const (
	// EntropyThreshold is the Shannon entropy at which a literal is
	// reported as a high-entropy secret.
	EntropyThreshold = 4.5

	// MinSecretLength is the shortest literal scanned for entropy.
	MinSecretLength = 20

	// MaxSecretLength is the longest literal scanned for entropy.
	MaxSecretLength = 100

	// SimhashThreshold is the similarity at which two findings are
	// near-duplicates.
	SimhashThreshold = 0.95

	// Soft404Threshold is the similarity percentage at which a 200
	// response is treated as a templated 404.
	Soft404Threshold = 90
)

// ============================================================================
// HTTP
// ============================================================================

const (
	// UserAgent is sent with every probe.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// Accept is sent with every probe.
	Accept = "*/*"

	// ContentTypeJSON is used by JSON writers.
	ContentTypeJSON = "application/json"
)

// ============================================================================
// TEMPLATES
// ============================================================================

const (
	// TemplateDir is the on-disk directory checked before the embedded
	// rule catalogs and report templates.
	TemplateDir = "templates"

	// TemplateDirEnv overrides the template root directory.
	TemplateDirEnv = "SENSINFOR_TEMPLATE_DIR"
)
