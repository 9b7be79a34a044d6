// Package matcher decides whether a probe response satisfies a rule
// pattern's Validator.
//
// Clauses are evaluated in a fixed order and the first failing clause
// rejects the response. Clauses that inspect the body fail closed when
// the body is empty. A clause whose patterns cannot be compiled is logged
// and skipped so one malformed rule never turns into a scan error.
package matcher

import (
	"bytes"
	"encoding/xml"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/sensinfor/sensinfor/internal/hexutil"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/regexcache"
	"github.com/sensinfor/sensinfor/pkg/transport"
)

// Clause names, in evaluation order.
const (
	ClauseStatus          = "status"
	ClauseContentType     = "content_type"
	ClauseSize            = "content_size"
	ClauseContentMatch    = "content_match"
	ClauseContentNotMatch = "content_not_match"
	ClauseHeaders         = "headers"
	ClauseMagicBytes      = "magic_bytes"
	ClauseRedirect        = "redirect_not_to"
	ClauseResponseTime    = "max_response_time"
	ClauseSoft404         = "not_like_404"
	ClauseStructure       = "structure"
	ClauseResponseHash    = "response_hash"
	ClauseFileFeature     = "sensitive_file_feature"
	ClauseTextEncoding    = "text_encoding"
)

// Soft404Checker reports whether a 200 response is really the origin's
// not-found page. threshold is a 0-100 similarity percentage; values
// <= 0 select the checker's own default.
type Soft404Checker interface {
	LikeNotFound(origin string, resp *transport.Response, threshold float64) bool
}

// Verdict is the outcome of Check. Clause names the first clause that
// rejected the response and is empty on a match.
type Verdict struct {
	Matched bool
	Clause  string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for skipped clauses.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSoft404 enables the not_like_404 clause.
func WithSoft404(c Soft404Checker) Option {
	return func(m *Matcher) { m.soft404 = c }
}

// Matcher evaluates validators. It is safe for concurrent use.
type Matcher struct {
	logger  *slog.Logger
	soft404 Soft404Checker
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate reports whether resp satisfies v using a Matcher without a
// soft-404 checker.
func Validate(resp *transport.Response, v *Validator) bool {
	return New().Validate(resp, v)
}

// Validate reports whether resp satisfies v.
func (m *Matcher) Validate(resp *transport.Response, v *Validator) bool {
	return m.Check(resp, v).Matched
}

// Check evaluates every clause in order and reports the first rejection.
func (m *Matcher) Check(resp *transport.Response, v *Validator) Verdict {
	if resp == nil {
		return Verdict{Clause: ClauseStatus}
	}
	if v == nil {
		v = &Validator{}
	}
	p := &probe{resp: resp}

	type step struct {
		name string
		ok   func() bool
	}
	steps := [...]step{
		{ClauseStatus, func() bool { return v.AllowsStatus(resp.StatusCode) }},
		{ClauseContentType, func() bool {
			return len(v.ContentTypes) == 0 || containsAnyFold(resp.ContentType(), v.ContentTypes)
		}},
		{ClauseSize, func() bool { return checkSize(resp.Size(), v.Size) }},
		{ClauseContentMatch, func() bool { return m.contentMatch(p, v) }},
		{ClauseContentNotMatch, func() bool { return m.contentNotMatch(p, v) }},
		{ClauseHeaders, func() bool { return checkHeaders(resp, v.Headers) }},
		{ClauseMagicBytes, func() bool { return m.magicBytes(resp.Body, v.MagicBytes) }},
		{ClauseRedirect, func() bool { return m.redirect(resp, v.RedirectNotTo) }},
		{ClauseResponseTime, func() bool {
			return v.MaxResponseTime <= 0 || resp.Elapsed <= time.Duration(v.MaxResponseTime)*time.Millisecond
		}},
		{ClauseSoft404, func() bool { return m.notLike404(resp, v.NotLike404) }},
		{ClauseStructure, func() bool { return m.structure(resp.Body, v.Structure) }},
		{ClauseResponseHash, func() bool { return m.responseHash(resp.Body, v.ResponseHash) }},
		{ClauseFileFeature, func() bool { return m.fileFeature(p, v.FileFeature) }},
		{ClauseTextEncoding, func() bool { return m.textEncoding(resp.Body, v.TextEncoding) }},
	}

	for _, s := range steps {
		if !s.ok() {
			return Verdict{Clause: s.name}
		}
	}
	return Verdict{Matched: true}
}

// probe memoizes the decoded body text across clauses.
type probe struct {
	resp    *transport.Response
	text    string
	decoded bool
}

func (p *probe) Text() string {
	if !p.decoded {
		p.text = p.resp.Text()
		p.decoded = true
	}
	return p.text
}

func (p *probe) empty() bool { return len(p.resp.Body) == 0 }

func checkSize(size int64, r *SizeRange) bool {
	if r == nil {
		return true
	}
	if size < r.Min {
		return false
	}
	return r.Max <= 0 || size <= r.Max
}

func checkHeaders(resp *transport.Response, want map[string]string) bool {
	for name, value := range want {
		if len(resp.Header.Values(name)) == 0 {
			return false
		}
		if resp.HeaderValue(name) != value {
			return false
		}
	}
	return true
}

// compile returns the usable patterns of a clause, logging the rest.
func (m *Matcher) compile(clause string, patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexcache.GetFold(p)
		if err != nil {
			m.logger.Warn("skipping malformed pattern",
				slog.String("clause", clause),
				slog.String("pattern", p),
				slog.Any("error", err))
			continue
		}
		out = append(out, re)
	}
	return out
}

func (m *Matcher) contentMatch(p *probe, v *Validator) bool {
	if len(v.ContentMatch) == 0 {
		return true
	}
	if p.empty() {
		return false
	}
	res := m.compile(ClauseContentMatch, v.ContentMatch)
	if len(res) == 0 {
		return true
	}
	text := p.Text()
	if v.AllRequired() {
		for _, re := range res {
			if !re.MatchString(text) {
				return false
			}
		}
		return true
	}
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (m *Matcher) contentNotMatch(p *probe, v *Validator) bool {
	if len(v.ContentNotMatch) == 0 {
		return true
	}
	if p.empty() {
		return false
	}
	text := p.Text()
	for _, re := range m.compile(ClauseContentNotMatch, v.ContentNotMatch) {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}

func (m *Matcher) magicBytes(body []byte, mb *MagicBytes) bool {
	if mb == nil {
		return true
	}
	if len(body) == 0 {
		return false
	}
	sig, err := mb.Signature()
	if err != nil {
		m.logger.Warn("skipping magic bytes clause", slog.Any("error", err))
		return true
	}
	end := mb.Offset + len(sig)
	if end > len(body) {
		return false
	}
	return bytes.Equal(body[mb.Offset:end], sig)
}

func (m *Matcher) redirect(resp *transport.Response, excluded []string) bool {
	if len(excluded) == 0 || resp.FinalURL == "" || resp.FinalURL == resp.URL {
		return true
	}
	final := resp.FinalURL
	path := ""
	if u, err := url.Parse(final); err == nil {
		path = u.Path
	}
	for _, re := range m.compile(ClauseRedirect, excluded) {
		if re.MatchString(final) || (path != "" && re.MatchString(path)) {
			return false
		}
	}
	return true
}

func (m *Matcher) notLike404(resp *transport.Response, c *Soft404Check) bool {
	if c == nil || !c.Enabled || m.soft404 == nil || resp.StatusCode != 200 {
		return true
	}
	return !m.soft404.LikeNotFound(resp.Origin(), resp, c.Threshold)
}

func (m *Matcher) structure(body []byte, s *Structure) bool {
	if s == nil {
		return true
	}
	if len(body) == 0 {
		return false
	}

	var (
		keys []string
		err  error
	)
	switch strings.ToLower(s.Type) {
	case "json":
		keys, err = jsonutil.TopLevelKeys(body)
	case "yaml", "yml":
		keys, err = yamlKeys(body)
	case "xml":
		keys, err = xmlKeys(body)
	default:
		m.logger.Warn("skipping structure clause", slog.String("type", s.Type))
		return true
	}
	if err != nil {
		m.logger.Debug("structure check failed", slog.String("type", s.Type), slog.Any("error", err))
		return false
	}
	for _, k := range s.RequiredKeys {
		if !slices.Contains(keys, k) {
			return false
		}
	}
	return true
}

func yamlKeys(body []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errNotMapping
	}
	root := doc.Content[0]
	keys := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys, nil
}

// xmlKeys returns the root element name followed by the names of its
// direct children.
func xmlKeys(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(label)
		if err != nil {
			return nil, err
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	}

	var keys []string
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth <= 2 {
				keys = append(keys, t.Name.Local)
			}
		case xml.EndElement:
			depth--
		}
	}
	if len(keys) == 0 {
		return nil, errNoRoot
	}
	return keys, nil
}

func (m *Matcher) responseHash(body []byte, h *ResponseHash) bool {
	if h == nil {
		return true
	}
	if len(body) == 0 {
		return false
	}
	sum, err := Digest(h.Algorithm, body)
	if err != nil {
		m.logger.Warn("skipping response hash clause", slog.Any("error", err))
		return true
	}
	if h.Expected != "" && !strings.EqualFold(h.Expected, sum) {
		return false
	}
	for _, not := range h.NotExpected {
		if strings.EqualFold(not, sum) {
			return false
		}
	}
	return true
}

func (m *Matcher) fileFeature(p *probe, f *FileFeature) bool {
	if f == nil || f.Type == "" {
		return true
	}
	if p.empty() {
		return false
	}
	if strings.EqualFold(f.Type, "custom") {
		res := m.compile(ClauseFileFeature, f.CustomPatterns)
		if len(res) == 0 {
			return true
		}
		text := p.Text()
		for _, re := range res {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}
	feature, ok := LookupFeature(f.Type)
	if !ok {
		m.logger.Warn("skipping unknown sensitive file feature", slog.String("type", f.Type))
		return true
	}
	return feature.Match(p.resp.ContentType(), p.Text())
}

func (m *Matcher) textEncoding(body []byte, enc string) bool {
	switch strings.ToLower(enc) {
	case "", "auto":
		return true
	case "utf-8", "utf8":
		return len(body) > 0 && utf8.Valid(body)
	case "ascii":
		return len(body) > 0 && hexutil.IsASCII(body)
	case "binary":
		return len(body) > 0 && hexutil.IsBinary(body)
	}
	m.logger.Warn("skipping unknown text encoding", slog.String("encoding", enc))
	return true
}
