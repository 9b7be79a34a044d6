// Package hexutil holds small hex helpers used for byte signatures and
// for rendering binary response previews. Lookup tables replace
// fmt.Sprintf on hot paths.
package hexutil

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Hex character tables
const (
	HexUpper = "0123456789ABCDEF"
	HexLower = "0123456789abcdef"
)

// ErrOddLength is returned by Decode when the digits do not pair up.
var ErrOddLength = errors.New("hexutil: odd number of hex digits")

// ErrInvalidDigit is returned by Decode for a non-hex character.
var ErrInvalidDigit = errors.New("hexutil: invalid hex digit")

// HexEscape contains "\xXX" for each byte value (lowercase)
var HexEscape [256]string

func init() {
	for i := 0; i < 256; i++ {
		HexEscape[i] = "\\x" + string(HexLower[i>>4]) + string(HexLower[i&0x0F])
	}
}

// Encode returns the lowercase hex encoding of b.
func Encode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = HexLower[c>>4]
		out[i*2+1] = HexLower[c&0x0F]
	}
	return string(out)
}

// Decode parses a byte signature written in any of the common notations:
// "504B0304", "50 4b 03 04", "0x504B0304", "\x50\x4B\x03\x04" or
// "50:4B:03:04".
func Decode(sig string) ([]byte, error) {
	s := strings.TrimSpace(sig)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(`\x`, "", `\X`, "", " ", "", ":", "", "-", "", "\t", "").Replace(s)
	if len(s)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi, ok1 := nibble(s[i*2])
		lo, ok2 := nibble(s[i*2+1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidDigit
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Printable renders b for display. Valid UTF-8 text passes through with
// control characters other than tab, CR and LF escaped; anything else is
// escaped byte by byte as \xNN.
func Printable(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size <= 1:
			sb.WriteString(HexEscape[b[0]])
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r', r == 0x7f:
			sb.WriteString(HexEscape[b[0]])
		default:
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}

// IsBinary reports whether b looks like binary data: invalid UTF-8 or a
// NUL byte anywhere.
func IsBinary(b []byte) bool {
	if !utf8.Valid(b) {
		return true
	}
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}

// IsASCII reports whether every byte of b is 7-bit.
func IsASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
