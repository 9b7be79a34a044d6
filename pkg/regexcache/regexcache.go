// Package regexcache memoizes compiled regular expressions.
//
// Rule catalogs reuse the same patterns for every target and every
// session, so each distinct pattern is compiled once per process. Patterns
// can be looked up as written or folded (case-insensitive), which is how
// rule content matchers are evaluated.
//
// Usage:
//
//	re, err := regexcache.GetFold(`\[core\]`)
//	if err != nil {
//	    // malformed rule pattern
//	}
//	ok := re.MatchString(body)
package regexcache

import (
	"fmt"
	"regexp"
	"sync"
)

type key struct {
	pattern string
	fold    bool
}

// cache holds compiled regular expressions keyed by pattern and flags.
var cache sync.Map

// Get returns a compiled regexp for the given pattern exactly as written.
func Get(pattern string) (*regexp.Regexp, error) {
	return lookup(key{pattern: pattern})
}

// GetFold returns a case-insensitive compiled regexp for pattern.
func GetFold(pattern string) (*regexp.Regexp, error) {
	return lookup(key{pattern: pattern, fold: true})
}

func lookup(k key) (*regexp.Regexp, error) {
	if cached, ok := cache.Load(k); ok {
		return cached.(*regexp.Regexp), nil
	}

	expr := k.pattern
	if k.fold {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("regexcache: compile %q: %w", k.pattern, err)
	}

	actual, _ := cache.LoadOrStore(k, re)
	return actual.(*regexp.Regexp), nil
}

// MustGet returns a compiled regexp for the given pattern.
// It panics if the pattern is invalid; use it only for literals.
func MustGet(pattern string) *regexp.Regexp {
	re, err := Get(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// MatchFold reports whether s contains a case-insensitive match of pattern.
func MatchFold(pattern, s string) (bool, error) {
	re, err := GetFold(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

// Precompile compiles and caches patterns in folded form, returning one
// error per pattern that failed. Catalog loaders use it to surface
// malformed rules before a scan starts.
func Precompile(patterns ...string) []error {
	var errs []error
	for _, pattern := range patterns {
		if _, err := GetFold(pattern); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Clear removes all cached regular expressions.
// This is primarily useful for testing.
func Clear() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
}

// Size returns the number of cached regular expressions.
func Size() int {
	count := 0
	cache.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
