// Package simhash computes locality-sensitive fingerprints of text.
// Similar texts produce fingerprints that differ in few bits, which is
// used to collapse near-duplicate findings and spot templated 404 pages.
package simhash

import (
	"fmt"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultBits is the fingerprint width.
	DefaultBits = 64

	// DefaultThreshold is the similarity at or above which two texts are
	// treated as near-duplicates.
	DefaultThreshold = 0.95

	// minTokenLen drops stop-word sized tokens ("a", "of", "to").
	minTokenLen = 3

	// maxWeight caps the token weight. Weights are kept in tenths so the
	// per-bit sums stay integral: a token of n bytes weighs min(n, 30),
	// i.e. min(n/10, 3) scaled by 10.
	maxWeight = 30
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	splitPattern = regexp.MustCompile(`[\s.,;:!?()\[\]{}'"]+`)
)

// Fingerprint is a SimHash digest. Only the low Bits bits are meaningful
// when a width below 64 was requested.
type Fingerprint uint64

// String renders f as 16 zero-padded lowercase hex characters.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Parse reads a fingerprint rendered by String.
func Parse(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("simhash: parse %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// Tokens returns the normalized tokens Compute hashes: tags are replaced
// by spaces, text is lowercased and split on whitespace and punctuation,
// and tokens shorter than three bytes are dropped.
func Tokens(text string) []string {
	text = strings.ToLower(tagPattern.ReplaceAllString(text, " "))
	parts := splitPattern.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if len(p) >= minTokenLen {
			out = append(out, p)
		}
	}
	return out
}

// tokenHash is a base-31 polynomial over the token bytes. Overflow wraps.
func tokenHash(tok string) uint64 {
	var h uint64
	for i := 0; i < len(tok); i++ {
		h = h*31 + uint64(tok[i])
	}
	return h
}

// Compute returns the SimHash of text using the given width (1-64 bits;
// anything else means DefaultBits). Text with no tokens hashes to 0.
func Compute(text string, width int) Fingerprint {
	width = normalizeBits(width)
	var v [64]int
	for _, tok := range Tokens(text) {
		h := tokenHash(tok)
		w := min(len(tok), maxWeight)
		for i := 0; i < width; i++ {
			if (h>>i)&1 == 1 {
				v[i] += w
			} else {
				v[i] -= w
			}
		}
	}
	var f uint64
	for i := 0; i < width; i++ {
		if v[i] > 0 {
			f |= 1 << i
		}
	}
	return Fingerprint(f)
}

// Hash is Compute with DefaultBits.
func Hash(text string) Fingerprint {
	return Compute(text, DefaultBits)
}

// Distance returns the Hamming distance between a and b.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Similarity returns 1 - distance/width, in [0, 1].
func Similarity(a, b Fingerprint, width int) float64 {
	width = normalizeBits(width)
	mask := ^uint64(0)
	if width < 64 {
		mask = 1<<width - 1
	}
	d := bits.OnesCount64(uint64(a^b) & mask)
	return 1 - float64(d)/float64(width)
}

// Similar reports whether a and b are at least threshold similar at the
// default width.
func Similar(a, b Fingerprint, threshold float64) bool {
	return Similarity(a, b, DefaultBits) >= threshold
}

func normalizeBits(n int) int {
	if n <= 0 || n > 64 {
		return DefaultBits
	}
	return n
}
