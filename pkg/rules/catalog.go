package rules

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/jsonutil"
	"github.com/sensinfor/sensinfor/templates"
)

// DefaultCatalogPath is the embedded catalog inside templates.FS.
const DefaultCatalogPath = "rules/default.yaml"

// Catalog is an ordered set of rules with unique ids.
type Catalog struct {
	Version string  `yaml:"version,omitempty" json:"version,omitempty"`
	Rules   []*Rule `yaml:"rules" json:"rules"`

	index map[string]int
}

// Parse decodes a YAML or JSON catalog. JSON is recognized by a leading
// '{' or '['; a bare array is accepted as a rule list. Rules are not
// validated; see Validate and Valid.
func Parse(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnknownFormat)
	}

	c := &Catalog{}
	switch trimmed[0] {
	case '[':
		if err := jsonutil.Unmarshal(trimmed, &c.Rules); err != nil {
			return nil, fmt.Errorf("rules: decode json: %w", err)
		}
	case '{':
		if err := jsonutil.Unmarshal(trimmed, c); err != nil {
			return nil, fmt.Errorf("rules: decode json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(trimmed, c); err != nil {
			return nil, fmt.Errorf("rules: decode yaml: %w", err)
		}
	}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", filepath.Base(path), err)
	}
	return Parse(data)
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	data, err := templates.FS.ReadFile(DefaultCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("rules: embedded catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, r := range c.Rules {
		r.Builtin = true
	}
	return c, nil
})

// Default returns a copy of the embedded catalog. Every rule in it is
// marked builtin.
func Default() (*Catalog, error) {
	c, err := defaultCatalog()
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (c *Catalog) reindex() error {
	c.index = make(map[string]int, len(c.Rules))
	kept := c.Rules[:0]
	for _, r := range c.Rules {
		if r == nil {
			continue
		}
		if _, dup := c.index[r.ID]; dup && r.ID != "" {
			return fmt.Errorf("%w: %q", ErrDuplicateRule, r.ID)
		}
		c.index[r.ID] = len(kept)
		kept = append(kept, r)
	}
	c.Rules = kept
	return nil
}

// Clone returns a catalog sharing no rule pointers with c.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{Version: c.Version, Rules: make([]*Rule, len(c.Rules))}
	for i, r := range c.Rules {
		cp := *r
		out.Rules[i] = &cp
	}
	_ = out.reindex()
	return out
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.Rules) }

// Get returns the rule with id.
func (c *Catalog) Get(id string) (*Rule, bool) {
	if c.index == nil {
		_ = c.reindex()
	}
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.Rules[i], true
}

// Merge adds the rules of other. A rule whose id already exists replaces
// the existing one in place; new ids are appended.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	if c.index == nil {
		_ = c.reindex()
	}
	for _, r := range other.Rules {
		if i, ok := c.index[r.ID]; ok {
			c.Rules[i] = r
			continue
		}
		c.index[r.ID] = len(c.Rules)
		c.Rules = append(c.Rules, r)
	}
}

// Validate returns every problem in every rule, joined.
func (c *Catalog) Validate() error {
	var errs []error
	for _, r := range c.Rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Valid returns the rules that pass validation. Each rejected rule is
// logged and skipped.
func (c *Catalog) Valid(logger *slog.Logger) []*Rule {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]*Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if err := r.Validate(); err != nil {
			logger.Warn("skipping malformed rule",
				slog.String("rule", r.ID),
				slog.Any("error", err))
			continue
		}
		out = append(out, r)
	}
	return out
}

// Enabled returns the rules that run by default.
func (c *Catalog) Enabled() []*Rule {
	var out []*Rule
	for _, r := range c.Rules {
		if r.IsEnabled() {
			out = append(out, r)
		}
	}
	return out
}

// ByCategory returns the rules of category, in catalog order.
func (c *Catalog) ByCategory(cat finding.Category) []*Rule {
	var out []*Rule
	for _, r := range c.Rules {
		if r.Category == cat {
			out = append(out, r)
		}
	}
	return out
}

// Select filters rules by id globs (doublestar syntax, e.g. "springboot-*"
// or "{git,svn}-*"). An empty include list selects everything; exclude
// wins over include. Tags may be matched with a "tag:" prefix.
func Select(rs []*Rule, include, exclude []string) ([]*Rule, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(strings.TrimPrefix(p, "tag:")) {
			return nil, fmt.Errorf("%w: %q", ErrBadGlob, p)
		}
	}

	var out []*Rule
	for _, r := range rs {
		if len(include) > 0 && !matchAny(r, include) {
			continue
		}
		if matchAny(r, exclude) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func matchAny(r *Rule, patterns []string) bool {
	for _, p := range patterns {
		if tag, ok := strings.CutPrefix(p, "tag:"); ok {
			for _, t := range r.Tags {
				if m, _ := doublestar.Match(strings.ToLower(tag), strings.ToLower(t)); m {
					return true
				}
			}
			continue
		}
		if m, _ := doublestar.Match(p, r.ID); m {
			return true
		}
	}
	return false
}

// Marshal encodes the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
