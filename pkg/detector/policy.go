package detector

import (
	"context"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/rules"
	"github.com/sensinfor/sensinfor/pkg/transport"
)

var corsHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Credentials",
	"Access-Control-Allow-Methods",
}

var cspHeaders = []string{
	"Content-Security-Policy",
	"X-Content-Security-Policy",
}

// unsafeCSP are directive fragments that defeat the policy.
var unsafeCSP = []string{"unsafe-inline", "unsafe-eval", "*"}

// HeaderPolicy evaluates CORS or CSP response headers instead of the body.
type HeaderPolicy struct {
	rule   *rules.Rule
	env    *Env
	policy string
}

// NewHeaderPolicy creates the header detector for a security rule.
func NewHeaderPolicy(r *rules.Rule, env Env) *HeaderPolicy {
	env.normalize()
	return &HeaderPolicy{rule: r, env: &env, policy: r.HeaderPolicy()}
}

// Rule returns the detector's rule.
func (h *HeaderPolicy) Rule() *rules.Rule { return h.rule }

// Policy returns rules.PolicyCORS or rules.PolicyCSP.
func (h *HeaderPolicy) Policy() string { return h.policy }

// Detect probes each pattern in order and reports the first response
// whose headers violate the policy.
func (h *HeaderPolicy) Detect(ctx context.Context, target string) (*finding.Result, error) {
	return detect(ctx, h.rule, h.env, target, h.accept)
}

func (h *HeaderPolicy) accept(resp *transport.Response, p *rules.Pattern) bool {
	if h.policy == rules.PolicyCSP {
		return UnsafeCSP(resp)
	}
	switch CORSVerdict(resp, p.Headers["Origin"]) {
	case CORSVulnerable:
		return true
	case CORSWildcard:
		return h.env.Matcher.Validate(resp, &p.Validators)
	}
	return false
}

// CORS outcomes.
const (
	CORSNone       = iota // no CORS headers, or a restrictive policy
	CORSWildcard          // Allow-Origin: * without credentials
	CORSVulnerable        // credentials allowed for any or a reflected origin
)

// CORSVerdict classifies the CORS headers of resp. sentOrigin is the Origin
// request header of the probe and may be empty.
func CORSVerdict(resp *transport.Response, sentOrigin string) int {
	present := false
	for _, name := range corsHeaders {
		if len(resp.Header.Values(name)) > 0 {
			present = true
			break
		}
	}
	if !present {
		return CORSNone
	}

	origin := strings.TrimSpace(resp.HeaderValue("Access-Control-Allow-Origin"))
	creds := strings.EqualFold(strings.TrimSpace(resp.HeaderValue("Access-Control-Allow-Credentials")), "true")
	switch {
	case origin == "*" && creds:
		return CORSVulnerable
	case origin == "*":
		return CORSWildcard
	case creds && sentOrigin != "" && strings.EqualFold(origin, sentOrigin):
		return CORSVulnerable
	}
	return CORSNone
}

// UnsafeCSP reports whether resp carries a CSP header with an unsafe
// directive. A response without a CSP header is not reported.
func UnsafeCSP(resp *transport.Response) bool {
	for _, name := range cspHeaders {
		v := strings.ToLower(resp.HeaderValue(name))
		if v == "" {
			continue
		}
		for _, frag := range unsafeCSP {
			if strings.Contains(v, frag) {
				return true
			}
		}
	}
	return false
}
