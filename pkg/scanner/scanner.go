// Package scanner runs scan sessions: one target URL checked against the
// selected rule catalog.
//
// A session resolves its detector set, collects soft-404 baselines for the
// target origin, and then runs the detectors on a bounded worker pool.
// Every completion is consumed on the session goroutine, which owns all
// bookkeeping: progress, deduplication, counters and delivery to the Sink.
// Sinks that implement Observer also receive the session lifecycle events.
//
// Usage:
//
//	s, err := scanner.New(cfg, scanner.WithSink(scanner.NewEventSink(d)))
//	sess, err := s.Run(ctx, "https://example.com/")
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensinfor/sensinfor/pkg/analyzer"
	"github.com/sensinfor/sensinfor/pkg/config"
	"github.com/sensinfor/sensinfor/pkg/dedup"
	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/detector"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/matcher"
	"github.com/sensinfor/sensinfor/pkg/output/events"
	"github.com/sensinfor/sensinfor/pkg/risk"
	"github.com/sensinfor/sensinfor/pkg/rules"
	"github.com/sensinfor/sensinfor/pkg/scope"
	"github.com/sensinfor/sensinfor/pkg/soft404"
	"github.com/sensinfor/sensinfor/pkg/templateresolver"
	"github.com/sensinfor/sensinfor/pkg/transport"
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner logger. Sessions log through it with their
// scan id attached.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTransport replaces the HTTP transport built from the config.
func WithTransport(t transport.Transport) Option {
	return func(s *Scanner) { s.transport = t }
}

// WithSink sets where results go. Without one they are only kept on the
// session.
func WithSink(sink Sink) Option {
	return func(s *Scanner) { s.sink = sink }
}

// WithCatalog replaces the catalog loaded from the config's rules section.
func WithCatalog(c *rules.Catalog) Option {
	return func(s *Scanner) { s.catalog = c }
}

// Scanner starts and tracks sessions. It is safe for concurrent use.
type Scanner struct {
	cfg       config.Config
	transport transport.Transport
	sink      Sink
	catalog   *rules.Catalog
	scope     *scope.Filter
	soft404   *soft404.Detector
	dedups    *dedup.Manager
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*run
}

// run is the mutable state behind a Session.
type run struct {
	mu      sync.Mutex
	sess    Session
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
}

func (r *run) update(fn func(*Session)) {
	r.mu.Lock()
	fn(&r.sess)
	r.mu.Unlock()
}

func (r *run) snapshot() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.clone()
}

// New validates cfg and builds a Scanner.
func New(cfg config.Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{
		cfg:      cfg,
		logger:   slog.Default(),
		dedups:   dedup.NewManager(),
		sessions: make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.transport == nil {
		t, err := transport.NewHTTP(cfg.Transport(), transport.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.transport = t
	}
	if s.sink == nil {
		s.sink = discard{}
	}
	if s.catalog == nil {
		c, err := LoadCatalog(cfg.Rules, s.logger)
		if err != nil {
			return nil, err
		}
		s.catalog = c
	}

	f, err := scope.New(cfg.Scope, scope.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.scope = f
	s.soft404 = soft404.New(s.transport,
		soft404.WithLogger(s.logger),
		soft404.WithThreshold(cfg.Soft404Threshold),
		soft404.WithTimeout(cfg.Timeout.D()))
	return s, nil
}

// LoadCatalog builds the catalog described by rc: the embedded catalog
// unless NoDefault is set, with every file in Files merged over it. File
// entries are resolved through templateresolver, so short names find
// catalogs in ./templates/rules and $SENSINFOR_TEMPLATE_DIR/rules.
func LoadCatalog(rc config.RulesConfig, logger *slog.Logger) (*rules.Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cat := &rules.Catalog{}
	if !rc.NoDefault {
		def, err := rules.Default()
		if err != nil {
			return nil, err
		}
		cat = def
	}
	for _, ref := range rc.Files {
		data, source, err := templateresolver.Read(ref, templateresolver.KindRules)
		if err != nil {
			return nil, fmt.Errorf("rule catalog %s: %w", ref, err)
		}
		extra, err := rules.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("rule catalog %s: %w", source, err)
		}
		cat.Merge(extra)
		logger.Debug("rule catalog loaded",
			slog.String("source", source),
			slog.Int("rules", extra.Len()))
	}
	return cat, nil
}

// Config returns the configuration sessions run with.
func (s *Scanner) Config() config.Config { return s.cfg }

// Catalog returns the loaded catalog.
func (s *Scanner) Catalog() *rules.Catalog { return s.catalog }

// Start validates target, registers a session and runs it in the
// background. Cancelling ctx stops the session. Out-of-scope targets
// return ErrOutOfScope and create no session.
func (s *Scanner) Start(ctx context.Context, target string) (string, error) {
	r, err := s.prepare(target)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(ctx)
	r.update(func(*Session) { r.cancel = cancel })
	go func() {
		defer cancel()
		s.execute(ctx, r)
	}()
	return r.sess.ID, nil
}

// Run is the synchronous form of Start. The returned error is non-nil
// only when no session was created; a session that failed reports it in
// Status and Error.
func (s *Scanner) Run(ctx context.Context, target string) (Session, error) {
	r, err := s.prepare(target)
	if err != nil {
		return Session{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.update(func(*Session) { r.cancel = cancel })
	s.execute(ctx, r)
	return r.snapshot(), nil
}

// Stop cancels a running session. Stopping a finished session is a no-op.
func (s *Scanner) Stop(id string) error {
	r, err := s.lookup(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess.Status.Done() {
		return nil
	}
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// Status returns a snapshot of the session.
func (s *Scanner) Status(id string) (Session, error) {
	r, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	return r.snapshot(), nil
}

// Wait blocks until the session ends or ctx is done.
func (s *Scanner) Wait(ctx context.Context, id string) (Session, error) {
	r, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// Sessions returns snapshots of every known session, oldest first.
func (s *Scanner) Sessions() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, r := range s.sessions {
		out = append(out, r.snapshot())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Session) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Forget drops a finished session. Running sessions are kept.
func (s *Scanner) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[id]
	if !ok || !r.snapshot().Status.Done() {
		return false
	}
	delete(s.sessions, id)
	return true
}

func (s *Scanner) lookup(id string) (*run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return r, nil
}

func (s *Scanner) prepare(target string) (*run, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if !s.scope.Allow(target) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfScope, target)
	}

	r := &run{
		sess: Session{
			ID:                 uuid.NewString(),
			URL:                target,
			Hostname:           u.Hostname(),
			Mode:               s.cfg.ScanMode,
			Status:             StatusPending,
			StartedAt:          time.Now().UTC(),
			FindingsBySeverity: make(map[finding.Severity]int),
		},
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[r.sess.ID] = r
	s.mu.Unlock()
	return r, nil
}

// execute drives one session to a terminal state. Lifecycle events are
// delivered on a context detached from ctx so the complete event still
// goes out after Stop.
func (s *Scanner) execute(ctx context.Context, r *run) {
	defer close(r.done)

	id, target, host := r.sess.ID, r.sess.URL, r.sess.Hostname
	out := context.WithoutCancel(ctx)
	logger := s.logger.With(slog.String("scan_id", id), slog.String("target", target))

	reg, ds, err := s.plan(ctx, r, logger)
	if err != nil {
		s.finish(out, r, err, logger)
		return
	}
	r.update(func(ss *Session) {
		ss.Status = StatusScanning
		ss.TotalRules = len(ds)
	})
	s.observe(out, &events.StartEvent{
		BaseEvent:   events.NewBase(events.EventTypeStart, id),
		Target:      target,
		Hostname:    host,
		Mode:        s.cfg.ScanMode,
		Detectors:   len(ds),
		Concurrency: s.cfg.Concurrency,
	}, logger)
	logger.Info("scan started",
		slog.String("mode", s.cfg.ScanMode),
		slog.Int("detectors", len(ds)))

	dd := s.dedups.Create(id, s.cfg.SimhashThreshold)
	defer s.dedups.Delete(id)

	completed, found := 0, 0
	for o := range reg.Stream(ctx, ds, target, s.cfg.Concurrency) {
		completed++
		if o.Err != nil && ctx.Err() == nil {
			r.update(func(ss *Session) { ss.Errors++ })
			s.observe(out, &events.ErrorEvent{
				BaseEvent: events.NewBase(events.EventTypeError, id),
				Target:    target,
				RuleID:    o.Detector.Rule().ID,
				Message:   o.Err.Error(),
			}, logger)
		}
		if o.Result != nil && s.record(out, r, dd, o, logger) {
			found++
		}
		r.update(func(ss *Session) { ss.CompletedRules = completed })
		s.observe(out, events.Progress(id, completed, len(ds), found), logger)
	}

	s.finish(out, r, ctx.Err(), logger)
}

// plan selects the session's detectors and prepares their environment.
func (s *Scanner) plan(ctx context.Context, r *run, logger *slog.Logger) (*detector.Registry, []detector.Detector, error) {
	cfg := s.cfg
	selected, err := rules.Select(s.catalog.Valid(logger), cfg.Rules.Include, cfg.Rules.Exclude)
	if err != nil {
		return nil, nil, err
	}
	selected = slices.DeleteFunc(selected, func(rule *rules.Rule) bool {
		if s.scope.Excepted(rule.ID, r.sess.Hostname) {
			logger.Debug("rule excepted for host", slog.String("rule", rule.ID))
			return true
		}
		return false
	})

	m := matcher.New(matcher.WithLogger(logger))
	if cfg.EnableSoft404 {
		if _, err := s.soft404.DetectTemplates(ctx, r.sess.URL); err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("soft-404 baselines unavailable", slog.Any("error", err))
		}
		m = matcher.New(matcher.WithLogger(logger), matcher.WithSoft404(s.soft404))
	}
	env := detector.Env{
		Transport: s.transport,
		Matcher:   m,
		Timeout:   cfg.Timeout.D(),
		Logger:    logger,
	}
	if cfg.EnableContentAnalysis {
		env.Analyzer = analyzer.New(cfg.Analyzer, analyzer.WithLogger(logger))
	}
	reg := detector.NewRegistry(env, detector.WithLogger(logger))

	var ds []detector.Detector
	if cfg.ScanMode == defaults.ModeThorough {
		for _, rule := range selected {
			if d, err := reg.Create(rule); err == nil {
				ds = append(ds, d)
			}
		}
	} else {
		ds = reg.CreateFromRules(selected)
	}
	ds = detector.SortByPriority(detector.FilterByMode(ds, cfg.ScanMode))
	if len(ds) == 0 {
		return nil, nil, ErrNoRules
	}
	return reg, ds, nil
}

// record deduplicates and emits one matched result. It reports whether
// the result counts as a finding.
func (s *Scanner) record(ctx context.Context, r *run, dd *dedup.Session, o detector.Outcome, logger *slog.Logger) bool {
	res := o.Result
	res.SessionID = r.sess.ID

	// Header policy findings describe response headers, so several of them
	// on one URL are distinct.
	if s.cfg.EnableDedup && o.Detector.Rule().HeaderPolicy() == "" {
		content := res.Evidence.ContentPreview
		if dd.IsDuplicate(res.URL, content) {
			r.update(func(ss *Session) { ss.Duplicates++ })
			logger.Debug("duplicate finding suppressed",
				slog.String("rule", res.RuleID),
				slog.String("url", res.URL))
			return false
		}
		dd.Add(res.ID, res.URL, content)
	}

	r.update(func(ss *Session) {
		ss.TotalFindings++
		ss.FindingsBySeverity[res.Severity]++
		ss.Results = append(ss.Results, res)
	})
	if err := s.sink.Emit(ctx, res); err != nil {
		logger.Warn("result sink failed",
			slog.String("rule", res.RuleID),
			slog.Any("error", err))
		s.observe(ctx, &events.ErrorEvent{
			BaseEvent: events.NewBase(events.EventTypeError, r.sess.ID),
			Target:    r.sess.URL,
			RuleID:    res.RuleID,
			Message:   fmt.Sprintf("emit result: %v", err),
		}, logger)
	}
	return true
}

// finish moves the session to its terminal state and emits the complete
// event. cause is nil on success.
func (s *Scanner) finish(ctx context.Context, r *run, cause error, logger *slog.Logger) {
	var snap Session
	r.update(func(ss *Session) {
		switch {
		case cause == nil:
			ss.Status = StatusCompleted
		case r.stopped || errors.Is(cause, context.Canceled):
			ss.Status = StatusCancelled
			ss.Error = "scan stopped"
		default:
			ss.Status = StatusFailed
			ss.Error = cause.Error()
		}
		ss.CompletedAt = time.Now().UTC()
		ss.Risk = risk.Aggregate(ss.Results)
		snap = ss.clone()
	})

	attrs := []any{
		slog.String("status", string(snap.Status)),
		slog.Int("findings", snap.TotalFindings),
		slog.Int("duplicates", snap.Duplicates),
		slog.Duration("duration", snap.Duration()),
	}
	if snap.Status == StatusFailed {
		logger.Error("scan failed", append(attrs, slog.String("error", snap.Error))...)
	} else {
		logger.Info("scan finished", attrs...)
	}

	s.observe(ctx, &events.CompleteEvent{
		BaseEvent:          events.NewBase(events.EventTypeComplete, snap.ID),
		Target:             snap.URL,
		Status:             snap.Status.eventStatus(),
		TotalFindings:      snap.TotalFindings,
		FindingsBySeverity: snap.FindingsBySeverity,
		Risk:               snap.Risk,
		DurationMs:         snap.Duration().Milliseconds(),
		Error:              snap.Error,
	}, logger)
}

func (s *Scanner) observe(ctx context.Context, e events.Event, logger *slog.Logger) {
	o, ok := s.sink.(Observer)
	if !ok {
		return
	}
	if err := o.Observe(ctx, e); err != nil {
		logger.Debug("event not delivered",
			slog.String("event", string(e.EventType())),
			slog.Any("error", err))
	}
}
