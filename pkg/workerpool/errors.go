package workerpool

import "errors"

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("workerpool: pool closed")
