// Package placeholder expands the variables in rule path templates and
// builds probe URLs from them.
//
// Built-in variables are derived from the scanned page URL:
//
//	{filename}  last path segment, "index" when the path ends in "/"
//	{ext}       extension of that segment including the dot, or ""
//	{dir}       directory of the path ("/" at the root)
//	{hostname}  host without port
//
// Unknown variables are left in place.
package placeholder

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Built-in variable names.
const (
	Filename = "filename"
	Ext      = "ext"
	Dir      = "dir"
	Hostname = "hostname"
)

// ErrBadBase is returned when the page URL is not absolute.
var ErrBadBase = errors.New("placeholder: base URL must be absolute")

// Placeholder describes a variable.
type Placeholder struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Engine expands {name} variables. The zero value is not usable; call
// NewEngine.
type Engine struct {
	placeholders map[string]*Placeholder
	regex        *regexp.Regexp
}

// NewEngine creates an engine with the built-in variables registered.
func NewEngine() *Engine {
	e := &Engine{
		placeholders: make(map[string]*Placeholder),
		regex:        regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`),
	}
	for _, p := range []*Placeholder{
		{Name: Filename, Description: "Last path segment of the page URL", Default: "index"},
		{Name: Ext, Description: "Extension of the last path segment, with the dot"},
		{Name: Dir, Description: "Directory of the page URL path", Default: "/"},
		{Name: Hostname, Description: "Page host without port"},
	} {
		e.placeholders[p.Name] = p
	}
	return e
}

// Register adds or replaces a variable definition.
func (e *Engine) Register(p *Placeholder) {
	e.placeholders[p.Name] = p
}

// Get returns a variable definition.
func (e *Engine) Get(name string) (*Placeholder, bool) {
	p, ok := e.placeholders[name]
	return p, ok
}

// Vars derives the built-in variable values from a page URL.
func Vars(base *url.URL) map[string]string {
	p := base.EscapedPath()
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	vars := map[string]string{Hostname: base.Hostname(), Dir: "/"}
	if len(segments) > 0 {
		name := segments[len(segments)-1]
		vars[Filename] = name
		if i := strings.LastIndex(name, "."); i > 0 {
			vars[Ext] = name[i:]
		}
	}
	if len(segments) > 1 {
		vars[Dir] = "/" + strings.Join(segments[:len(segments)-1], "/")
	}
	return vars
}

// Process replaces every known variable in template. Values in vars take
// precedence over registered defaults; a variable with neither a value nor
// a default expands to "" when registered and is left as-is otherwise.
func (e *Engine) Process(template string, vars map[string]string) string {
	return e.regex.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		if p, ok := e.placeholders[name]; ok {
			return p.Default
		}
		return match
	})
}

// Extract returns the distinct variable names used in template.
func (e *Engine) Extract(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range e.regex.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Unknown returns the variables in template that are not registered.
func (e *Engine) Unknown(template string) []string {
	var out []string
	for _, name := range e.Extract(template) {
		if _, ok := e.placeholders[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// HasPlaceholders reports whether s contains a variable.
func (e *Engine) HasPlaceholders(s string) bool {
	return e.regex.MatchString(s)
}

// BuildURL expands pattern against the page URL base and returns the probe
// URL on the same origin. The query and fragment are always cleared.
// extra supplies additional variables and overrides the built-ins.
func (e *Engine) BuildURL(base, pattern string, extra map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadBase, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrBadBase, base)
	}

	vars := Vars(u)
	for k, v := range extra {
		vars[k] = v
	}

	p := e.Process(pattern, vars)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	trailing := strings.HasSuffix(p, "/") && len(p) > 1
	p = path.Clean(p)
	if trailing && p != "/" {
		p += "/"
	}

	out := url.URL{Scheme: u.Scheme, Host: u.Host, Path: p}
	return out.String(), nil
}

var defaultEngine = NewEngine()

// BuildURL expands pattern with the built-in variables only.
func BuildURL(base, pattern string) (string, error) {
	return defaultEngine.BuildURL(base, pattern, nil)
}
