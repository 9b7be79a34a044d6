// Package transport fetches probe URLs. The detection engine depends only
// on the Transport interface; HTTP is the production implementation and
// tests substitute Func.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/duration"
	"github.com/sensinfor/sensinfor/pkg/httpclient"
	"github.com/sensinfor/sensinfor/pkg/iohelper"
	"github.com/sensinfor/sensinfor/pkg/retry"
)

// Transport performs one probe. Implementations must honor ctx
// cancellation and must be safe for concurrent use.
type Transport interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Config controls the HTTP transport.
type Config struct {
	Timeout      time.Duration // per-probe deadline
	RetryCount   int           // retries after the first attempt
	RetryDelay   time.Duration // linear backoff base
	Delay        time.Duration // minimum gap between probes; 0 disables pacing
	MaxBodySize  int64
	MaxRedirects int
	UserAgent    string
	Headers      map[string]string // sent with every probe

	// Client settings
	InsecureSkipVerify bool
	Proxy              string
}

// DefaultConfig returns the standard-mode transport settings.
func DefaultConfig() Config {
	return Config{
		Timeout:            duration.ProbeStandard,
		RetryCount:         defaults.RetryStandard,
		RetryDelay:         duration.RetryDelay,
		Delay:              duration.RequestDelay,
		MaxBodySize:        defaults.MaxBodySize,
		MaxRedirects:       defaults.MaxRedirects,
		UserAgent:          defaults.UserAgent,
		InsecureSkipVerify: true,
	}
}

// HTTP is the net/http backed Transport.
type HTTP struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClient replaces the http.Client (tests, custom TLS).
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// NewHTTP builds an HTTP transport. Zero config fields take defaults.
func NewHTTP(cfg Config, opts ...Option) (*HTTP, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	h := &HTTP{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	if h.client == nil {
		client, err := httpclient.New(httpclient.Config{
			// The per-probe context deadline is the real bound; the client
			// timeout only guards against a missing context deadline.
			Timeout:            cfg.Timeout * 2,
			MaxRedirects:       cfg.MaxRedirects,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Proxy:              cfg.Proxy,
		})
		if err != nil {
			return nil, err
		}
		h.client = client
	}

	if cfg.Delay > 0 {
		h.limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return h, nil
}

// Config returns the effective configuration.
func (h *HTTP) Config() Config { return h.cfg }

// Fetch performs req with pacing and retries. Timeouts and network
// failures come back wrapped in ErrTimeout or ErrRequest; cancellation of
// ctx returns ctx.Err().
func (h *HTTP) Fetch(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	req.Method = strings.ToUpper(req.Method)
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = h.cfg.Timeout
	}

	policy := retry.ForProbes(h.cfg.RetryCount, h.cfg.RetryDelay)
	policy.Retryable = IsTransient
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		h.logger.Debug("retrying probe",
			slog.String("url", req.URL),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}

	var resp *Response
	err := retry.Do(ctx, policy, func() error {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return retry.Stop(ctx.Err())
			}
		}
		r, err := h.once(ctx, req, timeout)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return resp, nil
}

func (h *HTTP) once(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, req.Method, req.URL, nil)
	if err != nil {
		return nil, retry.Stop(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	httpReq.Header.Set("User-Agent", h.cfg.UserAgent)
	httpReq.Header.Set("Accept", defaults.Accept)
	for k, v := range h.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, h.wrap(ctx, probeCtx, req.URL, err)
	}
	defer iohelper.DrainAndClose(httpResp.Body)

	var (
		body      []byte
		truncated bool
	)
	if req.Method != http.MethodHead {
		body, truncated, err = iohelper.ReadCapped(httpResp.Body, h.cfg.MaxBodySize)
		if err != nil {
			return nil, h.wrap(ctx, probeCtx, req.URL, err)
		}
	}

	final := req.URL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		final = httpResp.Request.URL.String()
	}
	return &Response{
		URL:        req.URL,
		FinalURL:   final,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Truncated:  truncated,
		Elapsed:    time.Since(start),
	}, nil
}

func (h *HTTP) wrap(parent, probe context.Context, url string, err error) error {
	if parent.Err() != nil {
		return retry.Stop(parent.Err())
	}
	var ne net.Error
	if errors.Is(probe.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s", ErrTimeout, url)
	}
	return fmt.Errorf("%w: %s: %w", ErrRequest, url, httpclient.Classify(err))
}
