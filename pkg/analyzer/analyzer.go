// Package analyzer extracts secrets and other sensitive data from a
// response body that already matched a rule.
//
// The body is routed by content type (JSON, HTML, JavaScript, env-style
// text) and always finishes with a generic regex and entropy pass. Every
// secret value is masked before it is stored in the returned
// finding.ExtractedData; raw values never leave this package.
package analyzer

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/entropy"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/regexcache"
)

// jsonSecretMinLength is the exclusive length floor for json_secret values.
const jsonSecretMinLength = 8

// SecretPattern is a user-supplied secret detector. When Pattern has a
// capture group, the first group is the secret value.
type SecretPattern struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// Config selects what the analyzer extracts.
type Config struct {
	EntropyThreshold float64         `yaml:"entropy_threshold" json:"entropy_threshold"`
	MinSecretLength  int             `yaml:"min_secret_length" json:"min_secret_length"`
	MaxSecretLength  int             `yaml:"max_secret_length" json:"max_secret_length"`
	CustomPatterns   []SecretPattern `yaml:"custom_patterns,omitempty" json:"custom_patterns,omitempty"`

	ScanEntropy         bool `yaml:"scan_entropy" json:"scan_entropy"`
	ExtractAPIEndpoints bool `yaml:"extract_api_endpoints" json:"extract_api_endpoints"`
	ExtractInternalIPs  bool `yaml:"extract_internal_ips" json:"extract_internal_ips"`
	ExtractEmails       bool `yaml:"extract_emails" json:"extract_emails"`
	ExtractGitRepos     bool `yaml:"extract_git_repos" json:"extract_git_repos"`
	ExtractAWSKeys      bool `yaml:"extract_aws_keys" json:"extract_aws_keys"`
	ExtractPrivateKeys  bool `yaml:"extract_private_keys" json:"extract_private_keys"`

	// JSAnalysis enables script-specific extraction (endpoints, config
	// objects, source maps, debug statements).
	JSAnalysis bool `yaml:"js_analysis" json:"js_analysis"`
}

// DefaultConfig returns every extractor enabled except JS analysis.
func DefaultConfig() Config {
	return Config{
		EntropyThreshold:    defaults.EntropyThreshold,
		MinSecretLength:     defaults.MinSecretLength,
		MaxSecretLength:     defaults.MaxSecretLength,
		ScanEntropy:         true,
		ExtractAPIEndpoints: true,
		ExtractInternalIPs:  true,
		ExtractEmails:       true,
		ExtractGitRepos:     true,
		ExtractAWSKeys:      true,
		ExtractPrivateKeys:  true,
	}
}

// Validate checks thresholds and compiles custom patterns.
func (c Config) Validate() error {
	if c.EntropyThreshold < 0 || c.EntropyThreshold > 8 {
		return fmt.Errorf("%w: entropy threshold %.2f out of range [0,8]", ErrInvalidConfig, c.EntropyThreshold)
	}
	if c.MinSecretLength < 1 {
		return fmt.Errorf("%w: min secret length must be positive", ErrInvalidConfig)
	}
	if c.MaxSecretLength < c.MinSecretLength {
		return fmt.Errorf("%w: max secret length %d below min %d", ErrInvalidConfig, c.MaxSecretLength, c.MinSecretLength)
	}
	for _, p := range c.CustomPatterns {
		if _, err := regexcache.Get(p.Pattern); err != nil {
			return fmt.Errorf("%w: custom pattern %q: %v", ErrInvalidConfig, p.Name, err)
		}
	}
	return nil
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

type customPattern struct {
	name string
	re   *regexp.Regexp
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	cfg    Config
	custom []customPattern
	logger *slog.Logger
}

// New creates an Analyzer. Custom patterns that do not compile are
// logged and dropped.
func New(cfg Config, opts ...Option) *Analyzer {
	a := &Analyzer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.MinSecretLength <= 0 {
		a.cfg.MinSecretLength = defaults.MinSecretLength
	}
	if a.cfg.MaxSecretLength < a.cfg.MinSecretLength {
		a.cfg.MaxSecretLength = max(defaults.MaxSecretLength, a.cfg.MinSecretLength)
	}
	for _, p := range cfg.CustomPatterns {
		re, err := regexcache.Get(p.Pattern)
		if err != nil {
			a.logger.Warn("dropping custom secret pattern",
				slog.String("name", p.Name),
				slog.Any("error", err))
			continue
		}
		name := p.Name
		if name == "" {
			name = "custom"
		}
		a.custom = append(a.custom, customPattern{name: name, re: re})
	}
	return a
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// QuickCheck is a cheap keyword pre-filter. A false result means the body
// cannot contain any of the credential shapes the analyzer looks for.
func QuickCheck(text string) bool {
	return containsAny(strings.ToLower(text), quickCheckKeywords)
}

// Analyze extracts data from text. contentType and rawURL steer the
// format-specific passes and may be empty.
func (a *Analyzer) Analyze(text, contentType, rawURL string) *finding.ExtractedData {
	out := &finding.ExtractedData{}
	if text == "" {
		return out
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		data, err := a.analyzeJSON(text)
		if err == nil {
			return data
		}
		a.logger.Debug("json analysis fell back to text", slog.String("url", rawURL), slog.Any("error", err))
	case strings.Contains(ct, "html"):
		a.analyzeHTML(text, out)
	case a.cfg.JSAnalysis && isJavaScript(ct, rawURL):
		out.Merge(analyzeJS(text))
	default:
		if looksLikeEnv(text, rawURL) {
			out.Secrets = append(out.Secrets, envSecrets(text)...)
		}
	}

	out.Merge(a.generic(text))
	return out
}

func isJavaScript(ct, rawURL string) bool {
	if strings.Contains(ct, "javascript") || strings.Contains(ct, "ecmascript") {
		return true
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := path.Ext(u.Path)
		return ext == ".js" || ext == ".mjs"
	}
	return false
}

// analyzeJSON walks every string leaf. Credential-named members become
// json_secret entries with their path as context; every leaf also goes
// through generic extraction.
func (a *Analyzer) analyzeJSON(text string) (*finding.ExtractedData, error) {
	out := &finding.ExtractedData{}
	err := jsonutil.WalkStrings([]byte(text), func(p, key, value string) {
		if len([]rune(value)) > jsonSecretMinLength && containsAny(strings.ToLower(key), jsonSecretKeys) {
			out.Merge(&finding.ExtractedData{Secrets: []finding.Secret{{
				Type:    "json_secret",
				Value:   Mask(value),
				Entropy: entropy.Shannon(value),
				Context: p,
			}}})
		}
		out.Merge(a.generic(value))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// analyzeHTML runs generic extraction over the joined inline scripts and
// over each comment. The caller adds the full-page pass.
func (a *Analyzer) analyzeHTML(page string, out *finding.ExtractedData) {
	scripts, comments := htmlParts(page)
	if len(scripts) > 0 {
		code := strings.Join(scripts, "\n")
		out.Merge(a.generic(code))
		if a.cfg.JSAnalysis {
			out.Merge(analyzeJS(code))
		}
	}
	for _, c := range comments {
		out.Merge(a.generic(c))
	}
}

// generic is the regex and entropy pass shared by every content type.
func (a *Analyzer) generic(text string) *finding.ExtractedData {
	out := &finding.ExtractedData{}
	if text == "" {
		return out
	}

	if a.cfg.ScanEntropy {
		for _, m := range entropy.ScanHighEntropy(text, a.cfg.EntropyThreshold, a.cfg.MinSecretLength, a.cfg.MaxSecretLength) {
			out.Secrets = append(out.Secrets, finding.Secret{
				Type:    "high_entropy",
				Value:   Mask(m.Value),
				Entropy: m.Entropy,
				Line:    m.Line,
				Column:  m.Column,
			})
		}
	}
	for _, cp := range a.custom {
		for _, idx := range cp.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if len(idx) >= 4 && idx[2] >= 0 {
				start, end = idx[2], idx[3]
			}
			value := text[start:end]
			if value == "" {
				continue
			}
			line, col := entropy.Position(text, start)
			out.Secrets = append(out.Secrets, finding.Secret{
				Type:    cp.name,
				Value:   Mask(value),
				Entropy: entropy.Shannon(value),
				Line:    line,
				Column:  col,
			})
		}
	}

	if a.cfg.ExtractAPIEndpoints {
		for _, m := range reAPIEndpoint.FindAllStringSubmatch(text, -1) {
			out.APIEndpoints = appendUnique(out.APIEndpoints, m[1])
		}
	}
	if a.cfg.ExtractInternalIPs {
		out.InternalIPs = appendUnique(out.InternalIPs, reInternalIP.FindAllString(text, -1)...)
	}
	if a.cfg.ExtractGitRepos {
		out.GitRepos = appendUnique(out.GitRepos, reGitRepo.FindAllString(text, -1)...)
	}
	if a.cfg.ExtractEmails {
		for _, e := range reEmail.FindAllString(text, -1) {
			if !containsAny(strings.ToLower(e), placeholderEmailDomains) {
				out.Emails = appendUnique(out.Emails, e)
			}
		}
	}
	if a.cfg.ExtractAWSKeys {
		for _, k := range reAWSAccessKey.FindAllString(text, -1) {
			out.AWSKeys = appendUnique(out.AWSKeys, Mask(k))
		}
		for _, m := range reAWSSecretKey.FindAllStringSubmatch(text, -1) {
			out.AWSKeys = appendUnique(out.AWSKeys, Mask(m[1]))
		}
	}
	if a.cfg.ExtractPrivateKeys {
		upper := strings.ToUpper(text)
		for _, pk := range privateKeyHeaders {
			if strings.Contains(upper, pk.header) {
				out.PrivateKeys = append(out.PrivateKeys, pk.label)
			}
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
