// Package risk scores findings. The score is a sum of fixed weights for
// the rule's severity and category, the kinds of data extracted from the
// response and public reachability, normalized to a 0-10 CVSS-like scale.
package risk

import (
	"fmt"
	"math"

	"github.com/sensinfor/sensinfor/pkg/finding"
)

// Factor names.
const (
	FactorSeverity     = "severity"
	FactorCategory     = "category"
	FactorSecrets      = "secrets"
	FactorInternalIPs  = "internalIps"
	FactorAPIKeys      = "apiKeys"
	FactorPrivateKeys  = "privateKeys"
	FactorPublicAccess = "publicAccess"
)

var severityWeights = map[finding.Severity]int{
	finding.Critical: 10,
	finding.High:     9,
	finding.Medium:   5,
	finding.Low:      2,
	finding.Info:     0,
}

var categoryWeights = map[finding.Category]int{
	finding.CategoryLeak:      3,
	finding.CategoryBackup:    2,
	finding.CategoryAPI:       2,
	finding.CategoryConfig:    2,
	finding.CategoryCloud:     3,
	finding.CategoryCI:        2,
	finding.CategoryFramework: 1,
	finding.CategorySecurity:  3,
}

const (
	weightSecrets      = 5
	weightInternalIPs  = 3
	weightAPIKeys      = 5
	weightPublicAccess = 2

	// maxRawScore maps onto a CVSS of 10.
	maxRawScore = 20
)

// UrgentPrefix leads the recommendations for high and critical rules.
const UrgentPrefix = "High risk: remediate immediately"

var categoryRecommendations = map[finding.Category][]string{
	finding.CategoryLeak: {
		"Remove the exposed files or block public access to them",
		"Review the leaked content and assess the impact",
		"Rotate any credentials and keys it contains",
	},
	finding.CategoryBackup: {
		"Delete backup files or move them out of the web root",
		"Deny access to backup extensions in the server configuration",
		"Clean up stale backups on a schedule",
	},
	finding.CategoryAPI: {
		"Require authentication and authorization on the endpoint",
		"Restrict public access to API documentation and endpoints",
		"Add rate limiting to prevent abuse",
	},
	finding.CategoryConfig: {
		"Move configuration files out of the web root",
		"Keep sensitive settings in environment variables",
		"Review configuration files for sensitive values",
	},
	finding.CategoryCloud: {
		"Review and tighten cloud service permissions",
		"Rotate the exposed cloud credentials",
		"Enable multi-factor authentication",
	},
	finding.CategoryCI: {
		"Restrict access to CI/CD configuration files",
		"Use the CI system's secrets store instead of inline values",
		"Review build logs for sensitive output",
	},
	finding.CategoryFramework: {
		"Disable or protect framework debug endpoints",
		"Update the framework to the latest secure release",
		"Apply production hardening settings",
	},
	finding.CategorySecurity: {
		"Fix the reported security header configuration",
		"Follow the framework's security hardening guide",
		"Audit security configuration regularly",
	},
}

// Factor is one contribution to the score.
type Factor struct {
	Name        string `json:"name"`
	Weight      int    `json:"weight"`
	Description string `json:"description"`
}

// Assessment is the scored outcome for one finding.
type Assessment struct {
	CVSSScore       float64           `json:"cvss_score"`
	RiskLevel       finding.RiskLevel `json:"risk_level"`
	Factors         []Factor          `json:"factors"`
	Recommendations []string          `json:"recommendations"`
}

// Assess scores a finding. data may be nil. Unknown severities and
// categories weigh zero.
func Assess(severity finding.Severity, category finding.Category, data *finding.ExtractedData) Assessment {
	var (
		factors []Factor
		total   int
	)
	add := func(name string, w int, desc string) {
		total += w
		factors = append(factors, Factor{Name: name, Weight: w, Description: desc})
	}

	add(FactorSeverity, severityWeights[severity], "severity: "+string(severity))
	add(FactorCategory, categoryWeights[category], "category: "+string(category))

	if data != nil {
		if n := len(data.Secrets); n > 0 {
			add(FactorSecrets, weightSecrets, fmt.Sprintf("%d secrets found", n))
		}
		if n := len(data.InternalIPs); n > 0 {
			add(FactorInternalIPs, weightInternalIPs, fmt.Sprintf("%d internal IPs found", n))
		}
		if n := len(data.AWSKeys); n > 0 {
			add(FactorAPIKeys, weightAPIKeys, fmt.Sprintf("%d API keys found", n))
		}
		if n := len(data.PrivateKeys); n > 0 {
			add(FactorPrivateKeys, weightAPIKeys, fmt.Sprintf("%d private keys found", n))
		}
	}
	add(FactorPublicAccess, weightPublicAccess, "publicly accessible")

	cvss := min(float64(total)*10/maxRawScore, 10)
	return Assessment{
		CVSSScore:       round1(cvss),
		RiskLevel:       Level(cvss),
		Factors:         factors,
		Recommendations: recommendations(severity, category, data),
	}
}

// Level buckets a CVSS score.
func Level(cvss float64) finding.RiskLevel {
	switch {
	case cvss >= 9:
		return finding.RiskCritical
	case cvss >= 7:
		return finding.RiskHigh
	case cvss >= 4:
		return finding.RiskMedium
	case cvss > 0:
		return finding.RiskLow
	default:
		return finding.RiskInfo
	}
}

func recommendations(severity finding.Severity, category finding.Category, data *finding.ExtractedData) []string {
	var out []string
	if severity.AtLeast(finding.High) {
		out = append(out, UrgentPrefix)
	}
	out = append(out, categoryRecommendations[category]...)

	if data == nil {
		return out
	}
	if len(data.Secrets) > 0 {
		out = append(out,
			"Rotate every exposed secret and credential",
			"Check usage logs for these credentials for unauthorized access")
	}
	if len(data.InternalIPs) > 0 {
		out = append(out,
			"Remove references to internal IP addresses",
			"Review whether internal network topology is exposed")
	}
	if len(data.AWSKeys) > 0 {
		out = append(out,
			"Deactivate the exposed AWS access keys",
			"Use IAM roles instead of hardcoded keys")
	}
	if len(data.PrivateKeys) > 0 {
		out = append(out,
			"Revoke the exposed private keys",
			"Generate new key pairs and update every dependent configuration")
	}
	return out
}

// Summary aggregates assessments across a session.
type Summary struct {
	AverageCVSS  float64                   `json:"average_cvss"`
	HighestLevel finding.RiskLevel         `json:"highest_level"`
	Counts       map[finding.RiskLevel]int `json:"counts"`
}

// Aggregate summarizes results. An empty slice yields a zero average and
// info as the highest level.
func Aggregate(results []*finding.Result) Summary {
	s := Summary{HighestLevel: finding.RiskInfo, Counts: make(map[finding.RiskLevel]int)}
	if len(results) == 0 {
		return s
	}
	var total float64
	n := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		n++
		total += r.CVSSScore
		if r.RiskLevel.Priority() > s.HighestLevel.Priority() {
			s.HighestLevel = r.RiskLevel
		}
		if r.RiskLevel != "" {
			s.Counts[r.RiskLevel]++
		}
	}
	if n > 0 {
		s.AverageCVSS = round1(total / float64(n))
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
