package soft404

import "errors"

var (
	// ErrInvalidOrigin is returned when the origin is not an absolute URL.
	ErrInvalidOrigin = errors.New("soft404: invalid origin")

	// ErrNoTransport is returned by DetectTemplates on a Detector built
	// without a transport.
	ErrNoTransport = errors.New("soft404: no transport")
)
