// Package templateresolver resolves rule catalog and report template
// references to their content.
//
// A reference containing a path separator is read from disk as-is. A short
// name goes through the resolution chain: ./templates/<kind>/ on disk, then
// $SENSINFOR_TEMPLATE_DIR/<kind>/, then the embedded FS, so the bundled
// templates are always available regardless of installation method.
//
// Usage:
//
//	data, source, err := templateresolver.Read("markdown", templateresolver.KindOutput)
package templateresolver

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/templates"
)

// Kind identifies the template category for resolution.
type Kind string

const (
	// KindRules resolves rule catalogs from rules/.
	KindRules Kind = "rules"

	// KindOutput resolves Go text/template report formats from output/.
	KindOutput Kind = "output"
)

// extensions maps each Kind to its expected file extension.
var extensions = map[Kind]string{
	KindRules:  ".yaml",
	KindOutput: ".tmpl",
}

// Result holds a resolved template's content and metadata.
type Result struct {
	// Source describes where the template was found, e.g.
	// "embedded:output/markdown.tmpl" or "disk:/path".
	Source string

	// Content is the template data. Caller must close it.
	Content io.ReadCloser
}

// TemplateInfo describes one embedded template.
type TemplateInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

func containsTraversal(value string) bool {
	return slices.Contains(strings.FieldsFunc(value, func(r rune) bool { return r == '/' || r == '\\' }), "..")
}

// locate returns the disk path or the embedded path of value.
func locate(value string, kind Kind) (source, diskPath, rel string, err error) {
	if value == "" {
		return "", "", "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if containsTraversal(value) {
		return "", "", "", fmt.Errorf("%w: %q", ErrTraversal, value)
	}
	ext, ok := extensions[kind]
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if strings.ContainsAny(value, "/\\") {
		return "disk:" + value, value, "", nil
	}

	name := value
	if !strings.HasSuffix(name, ext) {
		name += ext
	}

	candidate := filepath.Join(defaults.TemplateDir, string(kind), name)
	if _, statErr := os.Stat(candidate); statErr == nil {
		return "disk:" + candidate, candidate, "", nil
	}

	if envDir := os.Getenv(defaults.TemplateDirEnv); envDir != "" {
		candidate = filepath.Join(envDir, string(kind), name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return "env:" + candidate, candidate, "", nil
		}
	}

	rel = path.Join(string(kind), name)
	if _, statErr := fs.Stat(templates.FS, rel); statErr == nil {
		return "embedded:" + rel, "", rel, nil
	}
	return "", "", "", fmt.Errorf("%w: %q (kind=%s): tried disk, env, embedded", ErrNotFound, value, kind)
}

// Resolve resolves a template reference to its content.
func Resolve(value string, kind Kind) (*Result, error) {
	source, diskPath, rel, err := locate(value, kind)
	if err != nil {
		return nil, err
	}
	if diskPath != "" {
		f, err := os.Open(diskPath)
		if err != nil {
			return nil, fmt.Errorf("templateresolver: opening %q: %w", diskPath, err)
		}
		return &Result{Source: source, Content: f}, nil
	}
	f, err := templates.FS.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("templateresolver: opening embedded %q: %w", rel, err)
	}
	return &Result{Source: source, Content: f}, nil
}

// Read resolves value and returns its bytes and source description.
func Read(value string, kind Kind) ([]byte, string, error) {
	res, err := Resolve(value, kind)
	if err != nil {
		return nil, "", err
	}
	defer res.Content.Close()
	data, err := io.ReadAll(res.Content)
	if err != nil {
		return nil, "", fmt.Errorf("templateresolver: reading %s: %w", res.Source, err)
	}
	return data, res.Source, nil
}

// ListCategory returns the embedded templates of kind, sorted by name.
func ListCategory(kind Kind) ([]TemplateInfo, error) {
	ext, ok := extensions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	entries, err := fs.ReadDir(templates.FS, string(kind))
	if err != nil {
		return nil, fmt.Errorf("templateresolver: listing %s: %w", kind, err)
	}
	infos := make([]TemplateInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ext {
			continue
		}
		infos = append(infos, TemplateInfo{
			Name: strings.TrimSuffix(e.Name(), ext),
			Path: path.Join(string(kind), e.Name()),
			Kind: kind,
		})
	}
	return infos, nil
}
