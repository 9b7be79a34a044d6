package entropy

import (
	"math"
	"unicode/utf8"
)

// Strength buckets an advisory secret-strength score.
type Strength string

const (
	Weak   Strength = "weak"
	Medium Strength = "medium"
	Strong Strength = "strong"
)

// Assessment is the result of AssessStrength. It is for display only and
// never feeds a match decision.
type Assessment struct {
	Strength Strength `json:"strength"`
	Entropy  float64  `json:"entropy"`
	Score    float64  `json:"score"`
}

// AssessStrength scores s on a 0-10 scale from its length (up to 3
// points), entropy (up to 5) and one point per character class present
// (upper, lower, digit, other). Scores of 8 and above are strong, 5 and
// above medium.
func AssessStrength(s string) Assessment {
	h := Shannon(s)
	score := math.Min(float64(utf8.RuneCountInString(s))/10, 3) + math.Min(h, 5)

	var upper, lower, digit, other bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, present := range []bool{upper, lower, digit, other} {
		if present {
			score++
		}
	}
	if score > 10 {
		score = 10
	}

	strength := Weak
	switch {
	case score >= 8:
		strength = Strong
	case score >= 5:
		strength = Medium
	}
	return Assessment{Strength: strength, Entropy: h, Score: score}
}
