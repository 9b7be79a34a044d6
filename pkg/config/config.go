// Package config holds the scan configuration: what the CLI flags, a YAML
// or JSON file, and the mode presets resolve to.
//
// A Config is a plain value. Sessions receive a copy, so changing the
// defaults never affects a running scan.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensinfor/sensinfor/pkg/analyzer"
	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/pkg/scope"
	"github.com/sensinfor/sensinfor/pkg/transport"
)

// Duration is a time.Duration that reads "5s" style strings or a bare
// number of milliseconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText encodes d as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText accepts "1.5s", "250ms" or "250".
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, s)
	}
	*d = Duration(v)
	return nil
}

// RulesConfig selects the catalogs and rules to run.
type RulesConfig struct {
	// Files are extra catalogs merged over the embedded one.
	Files   []string `yaml:"files,omitempty" json:"files,omitempty"`
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	// NoDefault skips the embedded catalog.
	NoDefault bool `yaml:"no_default,omitempty" json:"no_default,omitempty"`
}

// Config is the complete scan configuration.
type Config struct {
	ScanMode    string   `yaml:"scan_mode" json:"scan_mode"`
	Concurrency int      `yaml:"concurrency" json:"concurrency"`
	Timeout     Duration `yaml:"timeout" json:"timeout"`
	RetryCount  int      `yaml:"retry_count" json:"retry_count"`
	RetryDelay  Duration `yaml:"retry_delay" json:"retry_delay"`
	Delay       Duration `yaml:"delay_between_requests" json:"delay_between_requests"`

	UserAgent          string            `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Headers            map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Proxy              string            `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	MaxBodySize        int64             `yaml:"max_body_size" json:"max_body_size"`

	EnableContentAnalysis bool            `yaml:"enable_content_analysis" json:"enable_content_analysis"`
	Analyzer              analyzer.Config `yaml:"analyzer" json:"analyzer"`

	SimhashThreshold float64 `yaml:"simhash_threshold" json:"simhash_threshold"`
	EnableDedup      bool    `yaml:"enable_dedup" json:"enable_dedup"`
	EnableSoft404    bool    `yaml:"enable_soft404" json:"enable_soft404"`
	Soft404Threshold float64 `yaml:"soft404_threshold" json:"soft404_threshold"`

	// MinSeverity is the lowest severity forwarded to hooks.
	MinSeverity finding.Severity `yaml:"min_severity" json:"min_severity"`

	Scope scope.Config `yaml:"scope" json:"scope"`
	Rules RulesConfig  `yaml:"rules" json:"rules"`
}

// Default returns the standard-mode configuration.
func Default() Config {
	return Config{
		ScanMode:              defaults.ModeStandard,
		Concurrency:           defaults.ConcurrencyStandard,
		Timeout:               Duration(duration.ProbeStandard),
		RetryCount:            defaults.RetryStandard,
		RetryDelay:            Duration(duration.RetryDelay),
		Delay:                 Duration(duration.RequestDelay),
		UserAgent:             defaults.UserAgent,
		InsecureSkipVerify:    true,
		MaxBodySize:           defaults.MaxBodySize,
		EnableContentAnalysis: true,
		Analyzer:              analyzer.DefaultConfig(),
		SimhashThreshold:      defaults.SimhashThreshold,
		EnableDedup:           true,
		EnableSoft404:         true,
		Soft404Threshold:      defaults.Soft404Threshold,
		MinSeverity:           finding.Info,
		Scope:                 scope.DefaultConfig(),
	}
}

// ForMode returns c with the presets of mode applied. Fast trades
// coverage for speed and turns content analysis off; thorough slows down
// and adds JavaScript analysis.
func (c Config) ForMode(mode string) Config {
	c.ScanMode = mode
	switch mode {
	case defaults.ModeFast:
		c.Concurrency = defaults.ConcurrencyFast
		c.Timeout = Duration(duration.ProbeFast)
		c.EnableContentAnalysis = false
		c.Analyzer.JSAnalysis = false
	case defaults.ModeStandard:
		c.Concurrency = defaults.ConcurrencyStandard
		c.Timeout = Duration(duration.ProbeStandard)
		c.EnableContentAnalysis = true
		c.Analyzer.JSAnalysis = false
	case defaults.ModeThorough:
		c.Concurrency = defaults.ConcurrencyThorough
		c.Timeout = Duration(duration.ProbeThorough)
		c.EnableContentAnalysis = true
		c.Analyzer.JSAnalysis = true
	}
	return c
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	switch c.ScanMode {
	case defaults.ModeFast, defaults.ModeStandard, defaults.ModeThorough:
	default:
		return fmt.Errorf("%w: scan mode %q (want fast, standard or thorough)", ErrInvalidConfig, c.ScanMode)
	}
	if c.Concurrency < 1 || c.Concurrency > defaults.ConcurrencyMax {
		return fmt.Errorf("%w: concurrency %d out of range [1,%d]", ErrInvalidConfig, c.Concurrency, defaults.ConcurrencyMax)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryCount < 0 || c.RetryCount > defaults.RetryMax {
		return fmt.Errorf("%w: retry count %d out of range [0,%d]", ErrInvalidConfig, c.RetryCount, defaults.RetryMax)
	}
	if c.Delay < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	}
	if c.SimhashThreshold < 0 || c.SimhashThreshold > 1 {
		return fmt.Errorf("%w: simhash threshold %.2f out of range [0,1]", ErrInvalidConfig, c.SimhashThreshold)
	}
	if c.Soft404Threshold < 0 || c.Soft404Threshold > 100 {
		return fmt.Errorf("%w: soft-404 threshold %.1f out of range [0,100]", ErrInvalidConfig, c.Soft404Threshold)
	}
	if c.MinSeverity != "" && !c.MinSeverity.IsValid() {
		return fmt.Errorf("%w: min severity %q", ErrInvalidConfig, c.MinSeverity)
	}
	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Transport returns the transport settings derived from c.
func (c Config) Transport() transport.Config {
	tc := transport.DefaultConfig()
	tc.Timeout = c.Timeout.D()
	tc.RetryCount = c.RetryCount
	tc.RetryDelay = c.RetryDelay.D()
	tc.Delay = c.Delay.D()
	tc.InsecureSkipVerify = c.InsecureSkipVerify
	tc.Proxy = c.Proxy
	if c.UserAgent != "" {
		tc.UserAgent = c.UserAgent
	}
	if c.MaxBodySize > 0 {
		tc.MaxBodySize = c.MaxBodySize
	}
	if len(c.Headers) > 0 {
		tc.Headers = c.Headers
	}
	return tc
}

// Parse decodes a YAML or JSON document over Default. Fields absent from
// data keep their default value. A document starting with '{' is JSON.
func Parse(data []byte) (Config, error) {
	c := Default()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return c, nil
	}
	var err error
	if trimmed[0] == '{' {
		err = jsonutil.Unmarshal(trimmed, &c)
	} else {
		err = yaml.Unmarshal(trimmed, &c)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return c, nil
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", filepath.Base(path), err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// BindFlags registers the scan flags on fs, writing into c. Call ForMode
// before binding so that mode presets become the flag defaults.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	// === EXECUTION ===
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "Concurrent detectors")
	fs.IntVar(&c.Concurrency, "c", c.Concurrency, "Concurrent detectors (alias)")
	fs.Var(&durationFlag{&c.Timeout}, "timeout", "Per-probe timeout (e.g. 5s)")
	fs.IntVar(&c.RetryCount, "retries", c.RetryCount, "Retries per probe")
	fs.Var(&durationFlag{&c.Delay}, "delay", "Minimum delay between requests (e.g. 100ms)")

	// === NETWORK ===
	fs.StringVar(&c.Proxy, "proxy", c.Proxy, "HTTP proxy URL")
	fs.StringVar(&c.Proxy, "x", c.Proxy, "Proxy (alias)")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent header")
	fs.BoolVar(&c.InsecureSkipVerify, "skip-verify", c.InsecureSkipVerify, "Skip TLS verification")
	fs.BoolVar(&c.InsecureSkipVerify, "k", c.InsecureSkipVerify, "Skip TLS (alias)")

	// === DETECTION ===
	fs.BoolVar(&c.EnableContentAnalysis, "analyze", c.EnableContentAnalysis, "Analyze matched bodies for secrets")
	fs.BoolVar(&c.Analyzer.JSAnalysis, "js", c.Analyzer.JSAnalysis, "Analyze JavaScript (endpoints, source maps, debug code)")
	fs.BoolVar(&c.EnableSoft404, "soft404", c.EnableSoft404, "Learn the origin's not-found page before scanning")
	fs.Float64Var(&c.Soft404Threshold, "soft404-threshold", c.Soft404Threshold, "Soft-404 similarity threshold (0-100)")
	fs.BoolVar(&c.EnableDedup, "dedup", c.EnableDedup, "Drop duplicate findings within a session")
	fs.Float64Var(&c.SimhashThreshold, "simhash-threshold", c.SimhashThreshold, "Near-duplicate similarity threshold (0-1)")
	fs.Var(&severityFlag{&c.MinSeverity}, "min-severity", "Lowest severity reported to hooks")
}

type durationFlag struct{ d *Duration }

func (f *durationFlag) String() string {
	if f.d == nil {
		return ""
	}
	return f.d.D().String()
}

func (f *durationFlag) Set(s string) error { return f.d.UnmarshalText([]byte(s)) }

type severityFlag struct{ s *finding.Severity }

func (f *severityFlag) String() string {
	if f.s == nil {
		return ""
	}
	return string(*f.s)
}

func (f *severityFlag) Set(v string) error {
	s, ok := finding.ParseSeverity(v)
	if !ok {
		return fmt.Errorf("%w: severity %q", ErrInvalidConfig, v)
	}
	*f.s = s
	return nil
}
