package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensinfor/sensinfor/pkg/finding"
)

func factorNames(a Assessment) []string {
	names := make([]string, len(a.Factors))
	for i, f := range a.Factors {
		names[i] = f.Name
	}
	return names
}

func TestAssess_HighLeakWithSecrets(t *testing.T) {
	t.Parallel()

	data := &finding.ExtractedData{Secrets: []finding.Secret{{Type: "aws_access_key", Value: "AKIA************MPLE"}}}
	a := Assess(finding.High, finding.CategoryLeak, data)

	// 9 + 3 + 5 + 2 = 19 -> 9.5
	assert.Equal(t, 9.5, a.CVSSScore)
	assert.Equal(t, finding.RiskCritical, a.RiskLevel)
	assert.Equal(t, []string{FactorSeverity, FactorCategory, FactorSecrets, FactorPublicAccess}, factorNames(a))
	require.NotEmpty(t, a.Recommendations)
	assert.Equal(t, UrgentPrefix, a.Recommendations[0])
	assert.Contains(t, a.Recommendations, "Rotate every exposed secret and credential")
}

func TestAssess_Scores(t *testing.T) {
	t.Parallel()

	all := &finding.ExtractedData{
		Secrets:     []finding.Secret{{Type: "x", Value: "***"}},
		InternalIPs: []string{"10.0.0.1"},
		AWSKeys:     []string{"AKIA************MPLE"},
		PrivateKeys: []string{"RSA Private Key"},
	}

	tests := []struct {
		name     string
		severity finding.Severity
		category finding.Category
		data     *finding.ExtractedData
		cvss     float64
		level    finding.RiskLevel
	}{
		{"info framework bare", finding.Info, finding.CategoryFramework, nil, 1.5, finding.RiskLow},
		{"low backup", finding.Low, finding.CategoryBackup, nil, 3, finding.RiskLow},
		{"medium config", finding.Medium, finding.CategoryConfig, &finding.ExtractedData{}, 4.5, finding.RiskMedium},
		{"medium api with ips", finding.Medium, finding.CategoryAPI, &finding.ExtractedData{InternalIPs: []string{"10.0.0.1"}}, 6, finding.RiskMedium},
		{"high ci", finding.High, finding.CategoryCI, nil, 6.5, finding.RiskMedium},
		{"critical cloud", finding.Critical, finding.CategoryCloud, nil, 7.5, finding.RiskHigh},
		{"everything caps at 10", finding.Critical, finding.CategorySecurity, all, 10, finding.RiskCritical},
		{"unknown category", finding.Low, finding.CategoryCustom, nil, 2, finding.RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := Assess(tt.severity, tt.category, tt.data)
			assert.Equal(t, tt.cvss, a.CVSSScore)
			assert.Equal(t, tt.level, a.RiskLevel)
		})
	}
}

func TestAssess_PrivateKeysUseAPIKeyWeight(t *testing.T) {
	t.Parallel()

	a := Assess(finding.Medium, finding.CategoryConfig, &finding.ExtractedData{PrivateKeys: []string{"RSA Private Key"}})
	require.Len(t, a.Factors, 4)
	assert.Equal(t, Factor{Name: FactorPrivateKeys, Weight: 5, Description: "1 private keys found"}, a.Factors[2])
	assert.Contains(t, a.Recommendations, "Revoke the exposed private keys")
	assert.NotContains(t, a.Recommendations, UrgentPrefix)
}

func TestAssess_Recommendations(t *testing.T) {
	t.Parallel()

	a := Assess(finding.Low, finding.CategoryBackup, &finding.ExtractedData{
		InternalIPs: []string{"192.168.0.2"},
		AWSKeys:     []string{"AKIA************MPLE"},
	})
	assert.Equal(t, []string{
		"Delete backup files or move them out of the web root",
		"Deny access to backup extensions in the server configuration",
		"Clean up stale backups on a schedule",
		"Remove references to internal IP addresses",
		"Review whether internal network topology is exposed",
		"Deactivate the exposed AWS access keys",
		"Use IAM roles instead of hardcoded keys",
	}, a.Recommendations)

	crit := Assess(finding.Critical, finding.CategoryCustom, nil)
	assert.Equal(t, []string{UrgentPrefix}, crit.Recommendations)
}

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cvss float64
		want finding.RiskLevel
	}{
		{10, finding.RiskCritical},
		{9, finding.RiskCritical},
		{8.9, finding.RiskHigh},
		{7, finding.RiskHigh},
		{4, finding.RiskMedium},
		{3.9, finding.RiskLow},
		{0.1, finding.RiskLow},
		{0, finding.RiskInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.cvss), "cvss %.1f", tt.cvss)
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	empty := Aggregate(nil)
	assert.Zero(t, empty.AverageCVSS)
	assert.Equal(t, finding.RiskInfo, empty.HighestLevel)
	assert.Empty(t, empty.Counts)

	s := Aggregate([]*finding.Result{
		{CVSSScore: 9.5, RiskLevel: finding.RiskCritical},
		{CVSSScore: 6, RiskLevel: finding.RiskMedium},
		{CVSSScore: 4.5, RiskLevel: finding.RiskMedium},
		nil,
	})
	assert.Equal(t, 6.7, s.AverageCVSS)
	assert.Equal(t, finding.RiskCritical, s.HighestLevel)
	assert.Equal(t, map[finding.RiskLevel]int{finding.RiskCritical: 1, finding.RiskMedium: 2}, s.Counts)
}
