package templateresolver

import "errors"

var (
	// ErrNotFound is returned when no source holds the template.
	ErrNotFound = errors.New("templateresolver: template not found")

	// ErrTraversal is returned for references containing "..".
	ErrTraversal = errors.New("templateresolver: path traversal not allowed")

	// ErrUnknownKind is returned for an unrecognized Kind.
	ErrUnknownKind = errors.New("templateresolver: unknown kind")
)
