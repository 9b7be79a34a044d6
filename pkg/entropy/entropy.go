// Package entropy scores strings by Shannon entropy and scans text for
// high-entropy literals that look like generated credentials.
package entropy

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sensinfor/sensinfor/pkg/regexcache"
)

// Default scan parameters for generic text.
const (
	DefaultThreshold = 4.5
	DefaultMinLength = 20
	DefaultMaxLength = 100

	// maxRepeat is the largest bound RE2 accepts in a {m,n} repetition.
	maxRepeat = 1000
)

// Shannon returns the base-2 Shannon entropy of s computed over its
// characters (runes). The empty string has entropy 0.
func Shannon(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int, 32)
	n := 0
	for _, r := range s {
		freq[r]++
		n++
	}
	total := float64(n)
	h := 0.0
	for _, c := range freq {
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h
}

// IsHighEntropy reports whether s is at least minLen characters long and
// has entropy at or above threshold.
func IsHighEntropy(s string, threshold float64, minLen int) bool {
	if utf8.RuneCountInString(s) < minLen {
		return false
	}
	return Shannon(s) >= threshold
}

// Base64 returns the entropy of s if it is made only of base64 characters,
// or 0 otherwise.
func Base64(s string) float64 {
	if s == "" || strings.IndexFunc(s, func(r rune) bool {
		return !(r < unicode.MaxASCII && (isAlnum(byte(r)) || r == '+' || r == '/' || r == '='))
	}) >= 0 {
		return 0
	}
	return Shannon(s)
}

// Hex returns the entropy of s if it is a hexadecimal string, or 0 otherwise.
func Hex(s string) float64 {
	if s == "" || strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F')
	}) >= 0 {
		return 0
	}
	return Shannon(s)
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// Match is one high-entropy literal found by ScanHighEntropy. Start and
// End are byte offsets of the whole match; Line and Column are 1-based
// and point at the match start.
type Match struct {
	Value   string
	Entropy float64
	Start   int
	End     int
	Line    int
	Column  int
}

// ScanHighEntropy extracts quoted string literals and UPPER_NAME=value
// assignments whose value length lies in [minLen, maxLen] and whose
// entropy is at least threshold. Quoted literals are reported first, then
// assignments, each in text order.
func ScanHighEntropy(text string, threshold float64, minLen, maxLen int) []Match {
	if text == "" {
		return nil
	}
	if minLen < 1 {
		minLen = 1
	}
	if maxLen > maxRepeat {
		maxLen = maxRepeat
	}
	if maxLen < minLen {
		return nil
	}

	quoted := regexcache.MustGet(fmt.Sprintf(`["']([^"']{%d,%d})["']`, minLen, maxLen))
	assign := regexcache.MustGet(fmt.Sprintf(`([A-Z_][A-Z0-9_]*)\s*=\s*(\S{%d,%d})`, minLen, maxLen))

	var out []Match
	collect := func(idx []int, group int) {
		value := text[idx[2*group]:idx[2*group+1]]
		n := utf8.RuneCountInString(value)
		if n < minLen || n > maxLen {
			return
		}
		h := Shannon(value)
		if h < threshold {
			return
		}
		line, col := Position(text, idx[0])
		out = append(out, Match{
			Value:   value,
			Entropy: h,
			Start:   idx[0],
			End:     idx[1],
			Line:    line,
			Column:  col,
		})
	}

	for _, idx := range quoted.FindAllStringSubmatchIndex(text, -1) {
		collect(idx, 1)
	}
	for _, idx := range assign.FindAllStringSubmatchIndex(text, -1) {
		collect(idx, 2)
	}
	return out
}

// Position converts a byte offset in text to a 1-based line and column.
// Columns count characters, not bytes.
func Position(text string, offset int) (line, column int) {
	if offset > len(text) {
		offset = len(text)
	}
	before := text[:offset]
	line = strings.Count(before, "\n") + 1
	lastNL := strings.LastIndexByte(before, '\n')
	column = utf8.RuneCountInString(before[lastNL+1:]) + 1
	return line, column
}
