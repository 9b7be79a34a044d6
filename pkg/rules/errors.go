package rules

import "errors"

var (
	// ErrMalformedRule wraps every problem found in a single rule.
	ErrMalformedRule = errors.New("rules: malformed rule")

	// ErrDuplicateRule is returned when a catalog defines an id twice.
	ErrDuplicateRule = errors.New("rules: duplicate rule id")

	// ErrBadGlob is returned for an include or exclude pattern that
	// doublestar cannot parse.
	ErrBadGlob = errors.New("rules: bad id pattern")

	// ErrUnknownFormat is returned when a catalog is neither YAML nor JSON.
	ErrUnknownFormat = errors.New("rules: unknown catalog format")
)
