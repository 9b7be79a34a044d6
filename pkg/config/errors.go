package config

import "errors"

// ErrInvalidConfig indicates the configuration is syntactically or
// semantically invalid (bad YAML, out-of-range values, unknown mode).
// Callers should use errors.Is to check for it.
var ErrInvalidConfig = errors.New("config: invalid configuration")
