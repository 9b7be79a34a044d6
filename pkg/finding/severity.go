package finding

import "strings"

// Severity represents the severity level a rule assigns to its findings.
// All values are lowercase strings.
type Severity string

const (
	// Critical represents immediately exploitable exposure (private keys, cloud credentials).
	Critical Severity = "critical"

	// High represents exposure requiring prompt fix (.git, .env, database dumps).
	High Severity = "high"

	// Medium represents moderate exposure (API docs, verbose debug endpoints).
	Medium Severity = "medium"

	// Low represents limited exposure (robots.txt, version files).
	Low Severity = "low"

	// Info represents informational findings with no direct security impact.
	Info Severity = "info"
)

// IsValid reports whether s is a recognized severity level.
func (s Severity) IsValid() bool {
	switch s {
	case Critical, High, Medium, Low, Info:
		return true
	}
	return false
}

// Score returns a numeric score for sorting and comparison.
// Critical=5, High=4, Medium=3, Low=2, Info=1, Unknown=0.
func (s Severity) Score() int {
	switch s {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Score() >= min.Score()
}

// String returns the severity as a string.
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity converts user input to a Severity. Matching is
// case-insensitive; unknown values report ok=false.
func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	return s, s.IsValid()
}

// Severities lists every level from most to least severe.
func Severities() []Severity {
	return []Severity{Critical, High, Medium, Low, Info}
}

// RiskLevel is the bucket a risk assessment falls into. It uses the same
// vocabulary as Severity but is derived from the computed score, not
// declared by the rule.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskInfo     RiskLevel = "info"
)

// Priority orders risk levels for aggregation: critical=5 ... info=1.
func (r RiskLevel) Priority() int {
	switch r {
	case RiskCritical:
		return 5
	case RiskHigh:
		return 4
	case RiskMedium:
		return 3
	case RiskLow:
		return 2
	case RiskInfo:
		return 1
	}
	return 0
}

// RiskLevels lists every level from highest to lowest priority.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow, RiskInfo}
}
