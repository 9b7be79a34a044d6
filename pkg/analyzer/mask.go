package analyzer

import "strings"

// MaskPlaceholder replaces values too short to partially reveal.
const MaskPlaceholder = "***"

const (
	maskVisible  = 4
	maskMaxStars = 16
)

// Mask hides the interior of a secret. Values of 8 runes or fewer become
// MaskPlaceholder; longer values keep 4 leading and 4 trailing runes
// around at most 16 asterisks.
func Mask(value string) string {
	r := []rune(value)
	if len(r) <= 2*maskVisible {
		return MaskPlaceholder
	}
	stars := min(len(r)-2*maskVisible, maskMaxStars)
	return string(r[:maskVisible]) + strings.Repeat("*", stars) + string(r[len(r)-maskVisible:])
}
