package finding

import "errors"

// Sentinel errors for common probe failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTimeout indicates the target did not respond within the
	// configured per-probe deadline.
	ErrTimeout = errors.New("finding: timeout")

	// ErrTargetUnreachable indicates the target host could not be
	// reached (DNS failure, connection refused, etc.).
	ErrTargetUnreachable = errors.New("finding: target unreachable")

	// ErrInvalidTarget indicates the scan target is not an absolute
	// http(s) URL.
	ErrInvalidTarget = errors.New("finding: invalid target url")

	// ErrRateLimited indicates the target is rate-limiting requests.
	ErrRateLimited = errors.New("finding: target rate limiting detected")
)
