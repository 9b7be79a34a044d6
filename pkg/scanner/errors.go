package scanner

import "errors"

var (
	// ErrInvalidTarget is returned for a target that is not an absolute
	// http or https URL.
	ErrInvalidTarget = errors.New("scanner: invalid target")

	// ErrOutOfScope is returned when the scope filter rejects the target.
	// No session is created.
	ErrOutOfScope = errors.New("scanner: target out of scope")

	// ErrUnknownSession is returned for a session id the scanner never
	// issued.
	ErrUnknownSession = errors.New("scanner: unknown session")

	// ErrNoRules is recorded on a session whose rule selection is empty.
	ErrNoRules = errors.New("scanner: no rules selected")
)
