package transport

import "errors"

// Sentinel errors returned by Fetch. Both are retried; after retries are
// exhausted the probe counts as "no match".
var (
	// ErrTimeout indicates the per-probe deadline expired.
	ErrTimeout = errors.New("transport: probe timed out")

	// ErrRequest indicates the request could not be completed (DNS,
	// connect, TLS, malformed response).
	ErrRequest = errors.New("transport: request failed")

	// ErrInvalidRequest indicates the request itself is unusable, such
	// as an unparseable URL. It is never retried.
	ErrInvalidRequest = errors.New("transport: invalid request")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRequest)
}
