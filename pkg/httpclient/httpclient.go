// Package httpclient builds the http.Client used for probing. All
// outbound traffic goes through New so redirect policy, proxying and TLS
// settings stay in one place.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the whole-request timeout (default: 30s). Per-probe
	// deadlines are normally set on the request context instead.
	Timeout time.Duration

	// MaxRedirects is how many redirects are followed before the last
	// redirect response is returned as-is. Zero disables following.
	MaxRedirects int

	// InsecureSkipVerify skips TLS certificate verification. Exposed
	// artifacts are frequently served with broken certificates.
	InsecureSkipVerify bool

	// Proxy is an http, https or socks5 proxy URL (optional).
	Proxy string

	MaxIdleConns        int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns the probing defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             duration.HTTPClient,
		MaxRedirects:        defaults.MaxRedirects,
		InsecureSkipVerify:  true,
		MaxIdleConns:        100,
		MaxConnsPerHost:     25,
		IdleConnTimeout:     duration.IdleConn,
		DialTimeout:         duration.DialTimeout,
		TLSHandshakeTimeout: duration.TLSHandshake,
	}
}

// New creates an HTTP client from cfg. Zero fields take their defaults.
// An invalid proxy URL is reported as an error rather than silently
// bypassed.
func New(cfg Config) (*http.Client, error) {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		DialContext:           dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // probing misconfigured hosts
		},
	}

	if err := applyProxy(transport, cfg.Proxy, cfg.DialTimeout); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport:     transport,
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}, nil
}

// redirectPolicy follows up to max redirects, then hands back the last
// redirect response so the caller can still inspect it.
func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if max <= 0 || len(via) > max {
			return http.ErrUseLastResponse
		}
		return nil
	}
}
