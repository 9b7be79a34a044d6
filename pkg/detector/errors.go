package detector

import "errors"

var (
	// ErrNoTransport is returned by Detect when the Env has no transport.
	ErrNoTransport = errors.New("detector: no transport")

	// ErrNoFactory is returned by Create for a category nobody registered.
	ErrNoFactory = errors.New("detector: no factory for category")

	// ErrPanic wraps a recovered detector panic.
	ErrPanic = errors.New("detector: panic")
)
