// Package soft404 recognizes origins that answer unknown paths with a
// templated "not found" page, so that 200 responses reusing that template
// are not reported as exposed files.
//
// Baselines are collected per origin by requesting a few paths that cannot
// exist and keeping the SimHash of every 404 body. A later 200 response
// whose fingerprint is close enough to any baseline is treated as a
// soft 404.
package soft404

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
	"github.com/sensinfor/sensinfor/pkg/iohelper"
	"github.com/sensinfor/sensinfor/pkg/simhash"
	"github.com/sensinfor/sensinfor/pkg/transport"
	"github.com/sensinfor/sensinfor/pkg/workerpool"
)

// DefaultPaths are requested by DetectTemplates.
var DefaultPaths = []string{
	"/nonexistent-abc123",
	"/random-path-xyz789",
	"/fake-file-qwerty456",
	"/test-404-detect-999",
}

// Detection methods reported by ComprehensiveCheck.
const (
	MethodHeader  = "header"
	MethodContent = "content-pattern"
	MethodSimHash = "simhash"
)

var notFoundHeaders = []string{"x-404", "x-not-found", "x-status"}

// notFoundPhrases are matched case-insensitively; two hits make a page
// look like an error page served with 200.
var notFoundPhrases = []string{
	"404", "not found", "page not found",
	"无法找到该页面", "页面不存在", "文件不存在",
	"未找到", "找不到", "访问的页面不存在",
	"error 404", "notfound", "no such file",
	"object not found", "resource not found",
}

// quickPhrases is the stricter list used by Quick.
var quickPhrases = []string{
	"404 not found",
	"page not found",
	"the requested url was not found",
	"object not found",
	"error 404",
}

// Baseline is one cached not-found response.
type Baseline struct {
	URL         string
	StatusCode  int
	Body        []byte // capped at iohelper.BaselineMaxBodySize
	Headers     map[string]string
	Fingerprint simhash.Fingerprint
}

// Match is the result of comparing a response against the baselines.
type Match struct {
	Is404      bool
	Similarity float64 // 0-100
	MatchURL   string
}

// Verdict is the result of ComprehensiveCheck.
type Verdict struct {
	Is404      bool
	Method     string
	Confidence float64 // 0-1
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithThreshold sets the similarity percentage (clamped to 0-100).
func WithThreshold(pct float64) Option {
	return func(d *Detector) { d.threshold = clamp(pct) }
}

// WithPaths replaces DefaultPaths.
func WithPaths(paths ...string) Option {
	return func(d *Detector) {
		if len(paths) > 0 {
			d.paths = paths
		}
	}
}

// WithTimeout sets the per-request timeout for baseline probes.
func WithTimeout(t time.Duration) Option {
	return func(d *Detector) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// Detector holds per-origin baselines. It is safe for concurrent use and
// implements matcher.Soft404Checker.
type Detector struct {
	transport transport.Transport
	logger    *slog.Logger
	paths     []string
	timeout   time.Duration

	mu        sync.RWMutex
	threshold float64
	baselines map[string][]Baseline
}

// New creates a Detector that probes through t.
func New(t transport.Transport, opts ...Option) *Detector {
	d := &Detector{
		transport: t,
		logger:    slog.Default(),
		paths:     DefaultPaths,
		timeout:   duration.ProbeStandard,
		threshold: defaults.Soft404Threshold,
		baselines: make(map[string][]Baseline),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectTemplates requests every baseline path on origin in parallel and
// caches each 404 response that has a body. Fetch failures are logged and
// skipped. It returns the baselines captured by this call.
func (d *Detector) DetectTemplates(ctx context.Context, origin string) ([]Baseline, error) {
	key := transport.Origin(origin)
	if key == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}
	if d.transport == nil {
		return nil, ErrNoTransport
	}

	found := make([]*Baseline, len(d.paths))
	pool := workerpool.New(len(d.paths), workerpool.WithLogger(d.logger))
	defer pool.Close()
	pool.ParallelFor(ctx, len(d.paths), func(i int) {
		found[i] = d.probe(ctx, key+d.paths[i])
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var captured []Baseline
	for _, b := range found {
		if b != nil {
			captured = append(captured, *b)
		}
	}

	d.mu.Lock()
	d.baselines[key] = mergeBaselines(d.baselines[key], captured)
	d.mu.Unlock()

	d.logger.Debug("soft-404 baselines collected",
		slog.String("origin", key),
		slog.Int("captured", len(captured)),
		slog.Int("probed", len(d.paths)))
	return captured, nil
}

func (d *Detector) probe(ctx context.Context, url string) *Baseline {
	resp, err := d.transport.Fetch(ctx, transport.Request{URL: url, Timeout: d.timeout})
	if err != nil {
		d.logger.Warn("soft-404 baseline probe failed",
			slog.String("url", url),
			slog.Any("error", err))
		return nil
	}
	if resp.StatusCode != 404 || len(resp.Body) == 0 {
		return nil
	}
	capped := &transport.Response{
		Header: resp.Header,
		Body:   iohelper.Truncate(resp.Body, iohelper.BaselineMaxBodySize),
	}
	return &Baseline{
		URL:         url,
		StatusCode:  resp.StatusCode,
		Body:        capped.Body,
		Headers:     resp.HeaderMap(),
		Fingerprint: simhash.Hash(capped.Text()),
	}
}

// mergeBaselines replaces entries with the same URL and appends the rest.
func mergeBaselines(old, fresh []Baseline) []Baseline {
	out := make([]Baseline, 0, len(old)+len(fresh))
	seen := make(map[string]bool, len(fresh))
	for _, b := range fresh {
		seen[b.URL] = true
	}
	for _, b := range old {
		if !seen[b.URL] {
			out = append(out, b)
		}
	}
	return append(out, fresh...)
}

// CheckIfLike404 compares resp against origin's baselines at the
// detector's threshold. An empty origin falls back to resp's own origin.
func (d *Detector) CheckIfLike404(origin string, resp *transport.Response) Match {
	return d.compare(origin, resp, d.Threshold())
}

// LikeNotFound reports whether resp matches a baseline at threshold
// percent; threshold <= 0 uses the detector's threshold.
func (d *Detector) LikeNotFound(origin string, resp *transport.Response, threshold float64) bool {
	if threshold <= 0 {
		threshold = d.Threshold()
	}
	return d.compare(origin, resp, clamp(threshold)).Is404
}

func (d *Detector) compare(origin string, resp *transport.Response, threshold float64) Match {
	if resp == nil || resp.StatusCode != 200 || len(resp.Body) == 0 {
		return Match{}
	}
	key := transport.Origin(origin)
	if key == "" {
		key = resp.Origin()
	}

	d.mu.RLock()
	baselines := d.baselines[key]
	d.mu.RUnlock()
	if len(baselines) == 0 {
		return Match{}
	}

	capped := &transport.Response{
		Header: resp.Header,
		Body:   iohelper.Truncate(resp.Body, iohelper.BaselineMaxBodySize),
	}
	fp := simhash.Hash(capped.Text())

	var m Match
	for _, b := range baselines {
		pct := simhash.Similarity(fp, b.Fingerprint, simhash.DefaultBits) * 100
		if pct > m.Similarity {
			m.Similarity = pct
			m.MatchURL = b.URL
		}
	}
	m.Is404 = m.Similarity >= threshold
	return m
}

// CheckByHeaders reports whether a not-found marker header mentions 404.
func CheckByHeaders(h map[string]string) bool {
	lower := make(map[string]string, len(h))
	for k, v := range h {
		lower[strings.ToLower(k)] = strings.ToLower(v)
	}
	for _, name := range notFoundHeaders {
		v := lower[name]
		if strings.Contains(v, "404") || strings.Contains(v, "not found") {
			return true
		}
	}
	return false
}

// CheckByContentPattern reports whether body contains at least two
// not-found phrases.
func CheckByContentPattern(body string) bool {
	lower := strings.ToLower(body)
	hits := 0
	for _, p := range notFoundPhrases {
		if strings.Contains(lower, p) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}

// ComprehensiveCheck tries headers, content phrases and baseline
// similarity in that order and reports the first positive signal.
func (d *Detector) ComprehensiveCheck(origin string, resp *transport.Response) Verdict {
	if resp == nil {
		return Verdict{}
	}
	if CheckByHeaders(resp.HeaderMap()) {
		return Verdict{Is404: true, Method: MethodHeader, Confidence: 0.9}
	}
	if CheckByContentPattern(resp.Text()) {
		return Verdict{Is404: true, Method: MethodContent, Confidence: 0.7}
	}
	if m := d.CheckIfLike404(origin, resp); m.Is404 {
		return Verdict{Is404: true, Method: MethodSimHash, Confidence: m.Similarity / 100}
	}
	return Verdict{}
}

// Quick is a baseline-free check: a 404 status, any not-found marker
// header, or one of a few unambiguous phrases.
func Quick(resp *transport.Response) bool {
	if resp == nil {
		return false
	}
	if resp.StatusCode == 404 {
		return true
	}
	h := resp.HeaderMap()
	if h["x-404"] != "" || h["x-not-found"] != "" || strings.Contains(h["x-status"], "404") {
		return true
	}
	lower := strings.ToLower(resp.Text())
	for _, p := range quickPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Threshold returns the similarity percentage.
func (d *Detector) Threshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetThreshold sets the similarity percentage, clamped to 0-100.
func (d *Detector) SetThreshold(pct float64) {
	d.mu.Lock()
	d.threshold = clamp(pct)
	d.mu.Unlock()
}

// Baselines returns a copy of the baselines cached for origin.
func (d *Detector) Baselines(origin string) []Baseline {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Baseline(nil), d.baselines[transport.Origin(origin)]...)
}

// TemplateCount returns the number of cached baselines across origins.
func (d *Detector) TemplateCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, b := range d.baselines {
		n += len(b)
	}
	return n
}

// ClearCache drops every baseline.
func (d *Detector) ClearCache() {
	d.mu.Lock()
	d.baselines = make(map[string][]Baseline)
	d.mu.Unlock()
}

func clamp(pct float64) float64 {
	return max(0, min(100, pct))
}
