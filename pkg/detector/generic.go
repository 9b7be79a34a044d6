package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/rules"
	"github.com/sensinfor/sensinfor/pkg/transport"
)

// acceptFunc decides whether a probe response matches pattern p.
type acceptFunc func(resp *transport.Response, p *rules.Pattern) bool

// Generic validates response bodies with the rule's validators.
type Generic struct {
	rule   *rules.Rule
	env    *Env
	accept acceptFunc
}

// NewGeneric creates the body-validating detector for r.
func NewGeneric(r *rules.Rule, env Env) *Generic {
	env.normalize()
	g := &Generic{rule: r, env: &env}
	g.accept = g.validate
	return g
}

// Rule returns the detector's rule.
func (g *Generic) Rule() *rules.Rule { return g.rule }

func (g *Generic) validate(resp *transport.Response, p *rules.Pattern) bool {
	return g.env.Matcher.Validate(resp, &p.Validators)
}

// Detect probes each pattern in order and stops at the first match.
// Transport failures count as "no match" for that pattern; Detect returns
// an error only when the target is unusable, ctx ends, or every pattern
// failed to fetch.
func (g *Generic) Detect(ctx context.Context, target string) (*finding.Result, error) {
	return detect(ctx, g.rule, g.env, target, g.accept)
}

func detect(ctx context.Context, r *rules.Rule, env *Env, target string, accept acceptFunc) (*finding.Result, error) {
	urls, err := r.URLs(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", finding.ErrInvalidTarget, err)
	}

	var (
		lastErr error
		fetched bool
	)
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &r.Patterns[i]

		resp, err := probe(ctx, env, u, p)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			env.Logger.Debug("probe failed",
				slog.String("rule", r.ID),
				slog.String("url", u),
				slog.Any("error", err))
			lastErr = err
			continue
		}
		fetched = true
		if resp == nil || !accept(resp, p) {
			continue
		}
		return env.result(r, p, u, resp), nil
	}
	if !fetched && lastErr != nil {
		return nil, fmt.Errorf("detector %s: %w", r.ID, lastErr)
	}
	return nil, nil
}

// probe fetches u, sending a HEAD first when the pattern asks for it. A
// HEAD whose status the validator rejects short-circuits to a nil
// response so the full request is never made.
func probe(ctx context.Context, env *Env, u string, p *rules.Pattern) (*transport.Response, error) {
	method := p.HTTPMethod()
	if p.Validators.PreflightWithHead && method == http.MethodGet {
		head, err := env.fetch(ctx, u, http.MethodHead, p)
		switch {
		case err == nil && !p.Validators.AllowsStatus(head.StatusCode):
			return nil, nil
		case err != nil && errors.Is(err, ErrNoTransport):
			return nil, err
		}
		// A failed HEAD is not conclusive; some servers reject the method.
	}
	return env.fetch(ctx, u, method, p)
}
