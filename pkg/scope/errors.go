package scope

import "errors"

var (
	// ErrUnknownMode is returned for a mode other than all, whitelist or
	// blacklist.
	ErrUnknownMode = errors.New("scope: unknown mode")

	// ErrBadPattern is returned for an empty or malformed domain or URL
	// pattern.
	ErrBadPattern = errors.New("scope: bad pattern")

	// ErrBadIP is returned for an entry that is neither an address nor a
	// CIDR prefix.
	ErrBadIP = errors.New("scope: bad ip")
)
