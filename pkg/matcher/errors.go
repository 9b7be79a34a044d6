package matcher

import "errors"

var (
	// ErrBadPattern wraps a regular expression or byte signature that
	// could not be compiled. The clause that carries it is skipped.
	ErrBadPattern = errors.New("matcher: bad pattern")

	// ErrUnknownFeature is returned for a sensitive file feature name
	// that is not in the built-in library.
	ErrUnknownFeature = errors.New("matcher: unknown sensitive file feature")

	// ErrUnknownAlgorithm is returned for an unsupported response hash
	// algorithm.
	ErrUnknownAlgorithm = errors.New("matcher: unknown hash algorithm")
)

var (
	errNotMapping = errors.New("matcher: yaml document is not a mapping")
	errNoRoot     = errors.New("matcher: xml document has no root element")
)
