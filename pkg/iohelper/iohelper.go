// Package iohelper reads probe response bodies under a hard size cap.
package iohelper

import (
	"io"
)

const (
	// DefaultMaxBodySize caps probe bodies (1MB).
	DefaultMaxBodySize int64 = 1024 * 1024

	// BaselineMaxBodySize caps bodies kept as soft-404 baselines (10KB).
	BaselineMaxBodySize int64 = 10 * 1024

	// drainLimit bounds how much is discarded to allow connection reuse.
	drainLimit int64 = 64 * 1024
)

// ReadBody reads at most maxSize bytes from r. A nil reader yields an
// empty body.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	body, _, err := ReadCapped(r, maxSize)
	return body, err
}

// ReadCapped reads at most maxSize bytes from r and reports whether more
// data was available.
func ReadCapped(r io.Reader, maxSize int64) (body []byte, truncated bool, err error) {
	if r == nil {
		return []byte{}, false, nil
	}
	body, err = io.ReadAll(io.LimitReader(r, maxSize+1))
	if int64(len(body)) > maxSize {
		return body[:maxSize], true, err
	}
	return body, false, err
}

// Truncate returns at most n bytes of b.
func Truncate(b []byte, n int64) []byte {
	if int64(len(b)) > n {
		return b[:n]
	}
	return b
}

// DrainAndClose discards what is left of r (bounded) and closes it if it
// is an io.ReadCloser, so the connection can be reused. It always returns
// nil so it can be deferred.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))
	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}
