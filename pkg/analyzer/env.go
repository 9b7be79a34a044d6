package analyzer

import (
	"net/url"
	"path"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/entropy"
	"github.com/sensinfor/sensinfor/pkg/finding"
)

// Env values are treated as secrets at a lower entropy bar than free text
// because the KEY=VALUE shape already implies configuration.
const (
	envEntropyThreshold = 4.0
	envMinLength        = 16
)

// envSecretKeywords mark a variable name as credential-bearing.
var envSecretKeywords = []string{
	"KEY", "SECRET", "PASSWORD", "PASSWD", "PWD", "TOKEN", "API_KEY", "APIKEY",
	"ACCESS_KEY", "PRIVATE_KEY", "ENCRYPTION_KEY", "AUTH", "CREDENTIAL", "SALT", "HASH",
}

type envVar struct {
	key    string
	value  string
	line   int
	secret bool
}

// looksLikeEnv reports whether text should be parsed as an env file: the
// URL path ends in .env, or the body has assignments over more than three
// lines.
func looksLikeEnv(text, rawURL string) bool {
	if rawURL != "" {
		p := rawURL
		if u, err := url.Parse(rawURL); err == nil {
			p = u.Path
		}
		if strings.HasSuffix(path.Base(p), ".env") {
			return true
		}
	}
	return strings.Contains(text, "=") && strings.Count(text, "\n")+1 > 3
}

func parseEnv(text string) []envVar {
	var vars []envVar
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		trimmed = strings.TrimPrefix(trimmed, "export ")
		m := reEnvLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		key, value := m[1], unquote(strings.TrimSpace(m[2]))
		if value == "" {
			continue
		}
		vars = append(vars, envVar{
			key:    key,
			value:  value,
			line:   i + 1,
			secret: isSecretKey(key) || entropy.IsHighEntropy(value, envEntropyThreshold, envMinLength),
		})
	}
	return vars
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func isSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, kw := range envSecretKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// classifyEnv names the kind of credential an env variable holds. Checks
// run most specific first; the first hit wins.
func classifyEnv(key, value string) string {
	upper := strings.ToUpper(key)
	switch {
	case reAWSAccessKey.MatchString(value):
		return "aws_access_key"
	case strings.Contains(upper, "AWS") && strings.Contains(upper, "SECRET"):
		return "aws_secret_key"
	case reGoogleAPIKey.MatchString(value):
		return "google_api_key"
	case reGitHubToken.MatchString(value):
		return "github_token"
	case reSlackToken.MatchString(value):
		return "slack_token"
	}

	if strings.Contains(upper, "DB") || strings.Contains(upper, "DATABASE") {
		switch {
		case strings.Contains(upper, "PASSWORD"):
			return "database_password"
		case reMongoDBURL.MatchString(value):
			return "mongodb_url"
		case reRedisURL.MatchString(value):
			return "redis_url"
		case reJDBCURL.MatchString(value):
			return "jdbc_url"
		}
	}

	switch {
	case strings.Contains(upper, "JWT"):
		return "jwt_secret"
	case strings.Contains(upper, "ENCRYPT"):
		return "encryption_key"
	case strings.Contains(upper, "KEY"):
		return "api_key"
	case strings.Contains(upper, "SECRET"):
		return "secret"
	case strings.Contains(upper, "TOKEN"):
		return "token"
	case strings.Contains(upper, "PASSWORD"):
		return "password"
	}
	return "unknown"
}

// envSecrets returns the masked secrets of an env-style body.
func envSecrets(text string) []finding.Secret {
	var out []finding.Secret
	for _, v := range parseEnv(text) {
		if !v.secret {
			continue
		}
		masked := Mask(v.value)
		out = append(out, finding.Secret{
			Type:    classifyEnv(v.key, v.value),
			Value:   masked,
			Entropy: entropy.Shannon(v.value),
			Line:    v.line,
			Context: v.key + "=" + masked,
		})
	}
	return out
}
