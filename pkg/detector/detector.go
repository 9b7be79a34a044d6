// Package detector binds rules to probes.
//
// A Detector owns one rule. Detect walks the rule's patterns in declared
// order against a target page URL and returns the first match as a
// finding.Result, or nil when nothing matched. Two strategies exist and
// are chosen from the rule itself: Generic validates bodies through the
// matcher, HeaderPolicy evaluates CORS and CSP response headers.
//
// The Registry turns rules into detectors and runs them concurrently.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/sensinfor/sensinfor/internal/hexutil"
	"github.com/sensinfor/sensinfor/pkg/analyzer"
	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/matcher"
	"github.com/sensinfor/sensinfor/pkg/risk"
	"github.com/sensinfor/sensinfor/pkg/rules"
	"github.com/sensinfor/sensinfor/pkg/simhash"
	"github.com/sensinfor/sensinfor/pkg/transport"
)

// Detector runs one rule against a target page URL.
type Detector interface {
	Rule() *rules.Rule
	// Detect returns nil, nil when no pattern matched.
	Detect(ctx context.Context, target string) (*finding.Result, error)
}

// Env carries the collaborators every detector needs. Analyzer may be nil
// to disable content analysis; Matcher defaults to one without soft-404
// support.
type Env struct {
	Transport transport.Transport
	Matcher   *matcher.Matcher
	Analyzer  *analyzer.Analyzer
	Timeout   time.Duration
	Logger    *slog.Logger
}

func (e *Env) normalize() {
	if e.Matcher == nil {
		e.Matcher = matcher.New(matcher.WithLogger(e.Logger))
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
}

// fetch issues one probe for pattern p.
func (e *Env) fetch(ctx context.Context, target, method string, p *rules.Pattern) (*transport.Response, error) {
	if e.Transport == nil {
		return nil, ErrNoTransport
	}
	return e.Transport.Fetch(ctx, transport.Request{
		URL:     target,
		Method:  method,
		Timeout: e.Timeout,
		Headers: p.Headers,
	})
}

// result assembles the finding for a matched probe.
func (e *Env) result(r *rules.Rule, p *rules.Pattern, target string, resp *transport.Response) *finding.Result {
	var extracted *finding.ExtractedData
	text := ""
	if len(resp.Body) > 0 && !hexutil.IsBinary(resp.Body) {
		text = resp.Text()
	}
	if e.Analyzer != nil && text != "" {
		if data := e.Analyzer.Analyze(text, resp.ContentType(), target); !data.IsEmpty() {
			extracted = data
		}
	}

	hostname := ""
	if u, err := url.Parse(target); err == nil {
		hostname = u.Hostname()
	}

	ev := finding.Evidence{
		Method:         p.HTTPMethod(),
		StatusCode:     resp.StatusCode,
		Headers:        resp.HeaderMap(),
		ContentType:    resp.ContentType(),
		ContentLength:  resp.Size(),
		ContentPreview: preview(resp.Body, defaults.PreviewSize),
		ElapsedMs:      resp.Elapsed.Milliseconds(),
		Extracted:      extracted,
	}
	if len(resp.Body) > 0 {
		h1, h2 := murmur3.Sum128(resp.Body)
		ev.BodyHash = fmt.Sprintf("%016x%016x", h1, h2)
	}
	if resp.FinalURL != "" && resp.FinalURL != target {
		ev.FinalURL = resp.FinalURL
	}

	assessment := risk.Assess(r.Severity, r.Category, extracted)
	res := &finding.Result{
		ID:          uuid.NewString(),
		URL:         target,
		Hostname:    hostname,
		RuleID:      r.ID,
		RuleName:    r.Name,
		Category:    r.Category,
		Severity:    r.Severity,
		RiskLevel:   assessment.RiskLevel,
		CVSSScore:   assessment.CVSSScore,
		Title:       r.Name,
		Description: r.Description,
		Evidence:    ev,
		Remediation: r.Remediation,
		References:  r.References,
		Tags:        r.Tags,
		DetectedAt:  time.Now().UTC(),
	}
	if text != "" {
		if fp := simhash.Hash(text); fp != 0 {
			res.Fingerprint = fp.String()
		}
	}
	return res
}

// preview returns at most n bytes of body for display, cut on a rune
// boundary when the body is text.
func preview(body []byte, n int) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > n {
		cut := n
		for cut > 0 && cut > n-utf8.UTFMax && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return hexutil.Printable(body)
}
