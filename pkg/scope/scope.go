// Package scope decides which hosts and URLs a scan may touch.
//
// A Filter runs in one of three modes. ModeAll scans everything,
// ModeWhitelist scans only listed hosts, and ModeBlacklist scans
// everything except listed hosts. Domain entries accept glob wildcards
// ("*.example.com", "api-?.example.com", "{www,cdn}.example.com") and
// are compared after IDNA normalization, so "bücher.example" and
// "xn--bcher-kva.example" are the same host. IP entries may be single
// addresses or CIDR prefixes.
//
// Rule exceptions switch individual rules off for matching hosts
// regardless of mode.
package scope

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/idna"

	"github.com/sensinfor/sensinfor/pkg/regexcache"
)

// Mode selects how the lists are applied.
type Mode string

const (
	ModeAll       Mode = "all"
	ModeWhitelist Mode = "whitelist"
	ModeBlacklist Mode = "blacklist"
)

// Config is the serializable scope definition.
type Config struct {
	Mode    Mode     `yaml:"mode" json:"mode"`
	Domains []string `yaml:"domains,omitempty" json:"domains,omitempty"`
	// URLs match path+query. "/re/" is a regular expression, "*" is a
	// wildcard, anything else must be equal.
	URLs []string `yaml:"urls,omitempty" json:"urls,omitempty"`
	IPs  []string `yaml:"ips,omitempty" json:"ips,omitempty"`

	// RuleExceptions maps a rule id to host globs it must not run against.
	RuleExceptions map[string][]string `yaml:"rule_exceptions,omitempty" json:"rule_exceptions,omitempty"`
}

// DefaultConfig scans every host.
func DefaultConfig() Config {
	return Config{Mode: ModeAll}
}

// Validate checks the mode and every entry.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeAll, ModeWhitelist, ModeBlacklist:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	for _, d := range c.Domains {
		if _, err := normalizePattern(d); err != nil {
			return err
		}
	}
	for _, ip := range c.IPs {
		if _, err := parsePrefix(ip); err != nil {
			return err
		}
	}
	for _, u := range c.URLs {
		if _, err := compileURLPattern(u); err != nil {
			return err
		}
	}
	for id, hosts := range c.RuleExceptions {
		for _, h := range hosts {
			if _, err := normalizePattern(h); err != nil {
				return fmt.Errorf("rule %s: %w", id, err)
			}
		}
	}
	return nil
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets the logger used for skipped targets.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// Filter is an immutable, compiled Config. It is safe for concurrent use.
type Filter struct {
	mode       Mode
	domains    []string
	prefixes   []netip.Prefix
	urls       []*regexp.Regexp
	exceptions map[string][]string
	logger     *slog.Logger
}

// New compiles cfg.
func New(cfg Config, opts ...Option) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Filter{
		mode:       cfg.Mode,
		exceptions: make(map[string][]string, len(cfg.RuleExceptions)),
		logger:     slog.Default(),
	}
	if f.mode == "" {
		f.mode = ModeAll
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, d := range cfg.Domains {
		p, _ := normalizePattern(d)
		f.domains = append(f.domains, p)
	}
	for _, ip := range cfg.IPs {
		p, _ := parsePrefix(ip)
		f.prefixes = append(f.prefixes, p)
	}
	for _, u := range cfg.URLs {
		re, _ := compileURLPattern(u)
		f.urls = append(f.urls, re)
	}
	for id, hosts := range cfg.RuleExceptions {
		for _, h := range hosts {
			p, _ := normalizePattern(h)
			f.exceptions[id] = append(f.exceptions[id], p)
		}
	}
	return f, nil
}

// Mode returns the effective mode.
func (f *Filter) Mode() Mode { return f.mode }

// AllowHost reports whether host may be scanned. host may carry a port.
func (f *Filter) AllowHost(host string) bool {
	if f == nil || f.mode == ModeAll {
		return true
	}
	listed := f.listed(Normalize(host))
	if f.mode == ModeWhitelist {
		return listed
	}
	return !listed
}

// Allow reports whether the URL may be scanned: its host must be allowed
// and, when URL patterns are configured, its path+query must pass them.
// Unparseable URLs are never allowed.
func (f *Filter) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if !f.AllowHost(u.Host) {
		f.skipped(rawURL, "host out of scope")
		return false
	}
	if f == nil || f.mode == ModeAll || len(f.urls) == 0 {
		return true
	}

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	hit := false
	for _, re := range f.urls {
		if re.MatchString(target) {
			hit = true
			break
		}
	}
	ok := hit == (f.mode == ModeWhitelist)
	if !ok {
		f.skipped(rawURL, "path out of scope")
	}
	return ok
}

// Excepted reports whether rule id is switched off for host.
func (f *Filter) Excepted(ruleID, host string) bool {
	if f == nil {
		return false
	}
	patterns := f.exceptions[ruleID]
	if len(patterns) == 0 {
		return false
	}
	return matchAny(Normalize(host), patterns)
}

// Partition splits hosts into allowed and blocked, preserving order.
func (f *Filter) Partition(hosts []string) (allowed, blocked []string) {
	for _, h := range hosts {
		if f.AllowHost(h) {
			allowed = append(allowed, h)
		} else {
			blocked = append(blocked, h)
		}
	}
	return allowed, blocked
}

func (f *Filter) listed(host string) bool {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range f.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
	}
	return matchAny(host, f.domains)
}

func (f *Filter) skipped(target, reason string) {
	f.logger.Debug("target skipped",
		slog.String("target", target),
		slog.String("reason", reason),
		slog.String("mode", string(f.mode)))
}

func matchAny(host string, patterns []string) bool {
	for _, p := range patterns {
		if p == host {
			return true
		}
		if ok, _ := doublestar.Match(p, host); ok {
			return true
		}
	}
	return false
}

var profile = idna.New(idna.MapForLookup(), idna.Transitional(false))

// Normalize lower-cases host, strips a port, brackets and a trailing dot,
// and converts internationalized names to their ASCII form. Names that
// fail IDNA conversion are returned lower-cased.
func Normalize(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return host
	}
	if ascii, err := profile.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

// normalizePattern applies Normalize label by label so wildcards survive
// IDNA conversion.
func normalizePattern(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty domain", ErrBadPattern)
	}
	labels := strings.Split(strings.TrimSuffix(strings.ToLower(p), "."), ".")
	for i, l := range labels {
		if strings.ContainsAny(l, "*?[]{}\\") {
			continue
		}
		labels[i] = Normalize(l)
	}
	out := strings.Join(labels, ".")
	if !doublestar.ValidatePattern(out) {
		return "", fmt.Errorf("%w: %q", ErrBadPattern, p)
	}
	return out, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %q", ErrBadIP, s)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrBadIP, s)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func compileURLPattern(p string) (*regexp.Regexp, error) {
	if len(p) > 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") {
		if re, err := regexcache.Get(p[1 : len(p)-1]); err == nil {
			return re, nil
		}
		// Not a valid expression; treat it as a literal path.
	}
	expr := regexp.QuoteMeta(p)
	expr = strings.ReplaceAll(expr, `\*`, ".*")
	re, err := regexcache.Get("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, p)
	}
	return re, nil
}
