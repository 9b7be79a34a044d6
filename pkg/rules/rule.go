// Package rules defines detection rules and the catalogs that hold them.
//
// A rule names what it looks for (category, severity, remediation) and an
// ordered list of probe patterns. Each pattern is a path template plus the
// matcher.Validator its response has to satisfy. Rules are read-only once
// loaded.
package rules

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/matcher"
	"github.com/sensinfor/sensinfor/pkg/placeholder"
)

// Header policies evaluated by security rules.
const (
	PolicyCORS = "cors"
	PolicyCSP  = "csp"
)

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodOptions: true,
}

var placeholders = placeholder.NewEngine()

// Pattern is one probe of a rule.
type Pattern struct {
	// Path is a template; see package placeholder for its variables.
	Path       string            `yaml:"path" json:"path"`
	Method     string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Validators matcher.Validator `yaml:"validators" json:"validators"`
}

// HTTPMethod returns the upper-cased method, GET by default.
func (p *Pattern) HTTPMethod() string {
	if p.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(p.Method)
}

// Rule is a detection rule.
type Rule struct {
	ID          string           `yaml:"id" json:"id"`
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Category    finding.Category `yaml:"category" json:"category"`
	Severity    finding.Severity `yaml:"severity" json:"severity"`

	// Enabled defaults to true when omitted.
	Enabled *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Builtin bool     `yaml:"builtin,omitempty" json:"builtin,omitempty"`
	Tags    []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Policy selects header evaluation for security rules (cors or csp).
	Policy string `yaml:"policy,omitempty" json:"policy,omitempty"`

	Patterns    []Pattern `yaml:"patterns" json:"patterns"`
	Remediation string    `yaml:"remediation,omitempty" json:"remediation,omitempty"`
	References  []string  `yaml:"references,omitempty" json:"references,omitempty"`
}

// IsEnabled reports whether the rule runs by default.
func (r *Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// HasTag reports whether the rule carries tag (case-insensitive).
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// HeaderPolicy returns the header policy of a security rule, or "" for
// rules that validate bodies. Security rules without an explicit policy
// fall back to their id.
func (r *Rule) HeaderPolicy() string {
	if r.Category != finding.CategorySecurity {
		return ""
	}
	switch p := strings.ToLower(r.Policy); p {
	case PolicyCORS, PolicyCSP:
		return p
	}
	if strings.Contains(strings.ToLower(r.ID), PolicyCSP) {
		return PolicyCSP
	}
	return PolicyCORS
}

// Validate reports every problem in the rule, each wrapped with
// ErrMalformedRule.
func (r *Rule) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrMalformedRule, r.label(), fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(r.ID) == "" {
		bad("missing id")
	}
	if strings.TrimSpace(r.Name) == "" {
		bad("missing name")
	}
	if !r.Category.IsValid() {
		bad("unknown category %q", r.Category)
	}
	if !r.Severity.IsValid() {
		bad("unknown severity %q", r.Severity)
	}
	if r.Policy != "" && r.Category != finding.CategorySecurity {
		bad("policy %q only applies to security rules", r.Policy)
	}
	if len(r.Patterns) == 0 {
		bad("no patterns")
	}
	for i := range r.Patterns {
		p := &r.Patterns[i]
		if strings.TrimSpace(p.Path) == "" {
			bad("pattern %d: missing path", i)
		}
		if unknown := placeholders.Unknown(p.Path); len(unknown) > 0 {
			bad("pattern %d: unknown placeholders %v", i, unknown)
		}
		if !allowedMethods[p.HTTPMethod()] {
			bad("pattern %d: unsupported method %q", i, p.Method)
		}
		if err := p.Validators.Check(); err != nil {
			bad("pattern %d: %v", i, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Rule) label() string {
	if r.ID != "" {
		return r.ID
	}
	return "<unnamed>"
}

// URLs expands every pattern against the page URL, in declared order.
func (r *Rule) URLs(base string) ([]string, error) {
	out := make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		u, err := placeholders.BuildURL(base, p.Path, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
