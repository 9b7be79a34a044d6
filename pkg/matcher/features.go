package matcher

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sensinfor/sensinfor/pkg/regexcache"
)

//go:embed features.yaml
var featuresYAML []byte

// Feature describes what a genuine copy of a well-known sensitive file
// looks like, so that error pages served under the same path are not
// reported.
type Feature struct {
	Name         string   `yaml:"name"`
	Patterns     []string `yaml:"patterns"`
	Exclude      []string `yaml:"exclude"`
	MinLength    int      `yaml:"min_length"`
	MaxLength    int      `yaml:"max_length"`
	ContentTypes []string `yaml:"content_types"`
}

var features = sync.OnceValue(func() map[string]*Feature {
	out := make(map[string]*Feature)
	if err := yaml.Unmarshal(featuresYAML, &out); err != nil {
		panic(fmt.Sprintf("matcher: embedded feature library: %v", err))
	}
	return out
})

// LookupFeature returns the built-in feature with the given name.
func LookupFeature(name string) (*Feature, bool) {
	f, ok := features()[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// FeatureNames lists the built-in features in sorted order.
func FeatureNames() []string {
	all := features()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Match applies the feature: content type, then length, then exclusions,
// then any pattern.
func (f *Feature) Match(contentType, text string) bool {
	if len(f.ContentTypes) > 0 && !containsAnyFold(contentType, f.ContentTypes) {
		return false
	}
	if f.MinLength > 0 && len(text) < f.MinLength {
		return false
	}
	if f.MaxLength > 0 && len(text) > f.MaxLength {
		return false
	}
	for _, p := range f.Exclude {
		if re, err := regexcache.GetFold(p); err == nil && re.MatchString(text) {
			return false
		}
	}
	return anyPatternMatches(f.Patterns, text)
}

func anyPatternMatches(patterns []string, text string) bool {
	for _, p := range patterns {
		re, err := regexcache.GetFold(p)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAnyFold(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
