package detector

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/rules"
)

// Factory builds the detector for a rule.
type Factory func(r *rules.Rule, env Env) Detector

// ForRule is the default factory: security rules with a header policy get
// a HeaderPolicy detector, everything else a Generic one.
func ForRule(r *rules.Rule, env Env) Detector {
	if r.HeaderPolicy() != "" {
		return NewHeaderPolicy(r, env)
	}
	return NewGeneric(r, env)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Detectors inherit it unless their
// Env carries one.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry maps categories to factories and caches one detector per rule
// id. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	env       Env
	factories map[finding.Category]Factory
	detectors map[string]Detector
	order     []string
	logger    *slog.Logger
}

// NewRegistry creates a registry whose every category uses ForRule.
func NewRegistry(env Env, opts ...Option) *Registry {
	r := &Registry{
		factories: make(map[finding.Category]Factory),
		detectors: make(map[string]Detector),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}
	r.env = env
	for _, c := range []finding.Category{
		finding.CategoryLeak, finding.CategoryBackup, finding.CategoryAPI,
		finding.CategoryConfig, finding.CategoryCloud, finding.CategoryCI,
		finding.CategoryFramework, finding.CategorySecurity, finding.CategoryCustom,
	} {
		r.factories[c] = ForRule
	}
	return r
}

// RegisterFactory replaces the factory of category. Detectors already
// created are kept.
func (r *Registry) RegisterFactory(c finding.Category, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[c] = f
}

// Create returns the detector for rule, building it on first use. It does
// not look at Enabled.
func (r *Registry) Create(rule *rules.Rule) (Detector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.detectors[rule.ID]; ok {
		return d, nil
	}
	f, ok := r.factories[rule.Category]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %s (rule %s)", ErrNoFactory, rule.Category, rule.ID)
	}
	d := f(rule, r.env)
	r.detectors[rule.ID] = d
	r.order = append(r.order, rule.ID)
	return d, nil
}

// CreateFromRules returns detectors for the enabled rules, in rule order.
// A rule id seen before yields the cached detector.
func (r *Registry) CreateFromRules(rs []*rules.Rule) []Detector {
	out := make([]Detector, 0, len(rs))
	for _, rule := range rs {
		if rule == nil || !rule.IsEnabled() {
			continue
		}
		d, err := r.Create(rule)
		if err != nil {
			r.logger.Warn("no detector for rule",
				slog.String("rule", rule.ID),
				slog.Any("error", err))
			continue
		}
		out = append(out, d)
	}
	return out
}

// Get returns the cached detector for a rule id.
func (r *Registry) Get(id string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[id]
	return d, ok
}

// All returns every cached detector in creation order.
func (r *Registry) All() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.detectors[id])
	}
	return out
}

// Remove drops the cached detector for id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.detectors[id]; !ok {
		return
	}
	delete(r.detectors, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

// Clear drops every cached detector.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.detectors)
	r.order = nil
}

// Stats summarizes the cached detectors.
type Stats struct {
	Total      int                      `json:"total"`
	ByCategory map[finding.Category]int `json:"by_category"`
	BySeverity map[finding.Severity]int `json:"by_severity"`
}

// Stats counts cached detectors by category and severity.
func (r *Registry) Stats() Stats {
	s := Stats{ByCategory: map[finding.Category]int{}, BySeverity: map[finding.Severity]int{}}
	for _, d := range r.All() {
		rule := d.Rule()
		s.Total++
		s.ByCategory[rule.Category]++
		s.BySeverity[rule.Severity]++
	}
	return s
}

// FilterByMode narrows detectors for a scan mode. Fast keeps high and
// critical rules, leak rules and single-pattern rules; standard keeps
// enabled rules; thorough (and any unknown mode) keeps everything.
func FilterByMode(ds []Detector, mode string) []Detector {
	var keep func(*rules.Rule) bool
	switch mode {
	case defaults.ModeFast:
		keep = func(r *rules.Rule) bool {
			return r.Severity.AtLeast(finding.High) ||
				r.Category == finding.CategoryLeak ||
				len(r.Patterns) == 1
		}
	case defaults.ModeStandard:
		keep = (*rules.Rule).IsEnabled
	default:
		return slices.Clone(ds)
	}
	out := make([]Detector, 0, len(ds))
	for _, d := range ds {
		if keep(d.Rule()) {
			out = append(out, d)
		}
	}
	return out
}

// SortByPriority returns ds ordered critical first. The sort is stable,
// so rules of equal severity keep their catalog order.
func SortByPriority(ds []Detector) []Detector {
	out := slices.Clone(ds)
	slices.SortStableFunc(out, func(a, b Detector) int {
		return b.Rule().Severity.Score() - a.Rule().Severity.Score()
	})
	return out
}
