package test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// =============================================================================
// CATEGORY SYNCHRONIZATION TESTS
// =============================================================================
//
// The rule catalog, the finding package and the detector registry each
// name categories and severities. These tests catch drift between them
// without importing the main module.

// typedConstants returns name -> value for every string constant of the
// given type declared in filePath.
func typedConstants(t *testing.T, filePath, typeName string) map[string]string {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filePath, nil, 0)
	if err != nil {
		t.Fatalf("parse %s: %v", filePath, err)
	}

	out := map[string]string{}
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			continue
		}
		for _, spec := range gd.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			ident, ok := vs.Type.(*ast.Ident)
			if !ok || ident.Name != typeName {
				continue
			}
			for i, name := range vs.Names {
				if i >= len(vs.Values) {
					continue
				}
				lit, ok := vs.Values[i].(*ast.BasicLit)
				if !ok || lit.Kind != token.STRING {
					continue
				}
				v, err := strconv.Unquote(lit.Value)
				if err != nil {
					t.Fatalf("%s: unquote %s: %v", filePath, lit.Value, err)
				}
				out[name.Name] = v
			}
		}
	}
	return out
}

// catalogValues collects the distinct values of a top-level rule key
// ("category", "severity") from a catalog YAML file.
func catalogValues(t *testing.T, filePath, key string) []string {
	t.Helper()
	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read %s: %v", filePath, err)
	}
	re := regexp.MustCompile(`(?m)^\s+` + regexp.QuoteMeta(key) + `:\s*"?([a-z0-9_-]+)"?\s*$`)
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(string(data), -1) {
		seen[m[1]] = true
	}
	vals := make([]string, 0, len(seen))
	for v := range seen {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals
}

func valueSet(m map[string]string) map[string]bool {
	s := make(map[string]bool, len(m))
	for _, v := range m {
		s[v] = true
	}
	return s
}

func TestCatalogCategoriesAreDeclared(t *testing.T) {
	t.Parallel()
	root := getRepoRoot(t)

	declared := valueSet(typedConstants(t, filepath.Join(root, "pkg", "finding", "category.go"), "Category"))
	if len(declared) == 0 {
		t.Fatal("no Category constants found in pkg/finding/category.go")
	}

	used := catalogValues(t, filepath.Join(root, "templates", "rules", "default.yaml"), "category")
	if len(used) == 0 {
		t.Fatal("default catalog declares no categories")
	}
	for _, c := range used {
		if !declared[c] {
			t.Errorf("templates/rules/default.yaml uses category %q which pkg/finding does not declare", c)
		}
	}
}

func TestCatalogSeveritiesAreDeclared(t *testing.T) {
	t.Parallel()
	root := getRepoRoot(t)

	declared := valueSet(typedConstants(t, filepath.Join(root, "pkg", "finding", "severity.go"), "Severity"))
	for _, s := range catalogValues(t, filepath.Join(root, "templates", "rules", "default.yaml"), "severity") {
		if !declared[s] {
			t.Errorf("templates/rules/default.yaml uses severity %q which pkg/finding does not declare", s)
		}
	}
}

// TestEveryCategoryHasFactory verifies the detector registry registers a
// default factory for each declared category.
func TestEveryCategoryHasFactory(t *testing.T) {
	t.Parallel()
	root := getRepoRoot(t)

	consts := typedConstants(t, filepath.Join(root, "pkg", "finding", "category.go"), "Category")
	src, err := os.ReadFile(filepath.Join(root, "pkg", "detector", "registry.go"))
	if err != nil {
		t.Fatalf("read registry.go: %v", err)
	}

	var missing []string
	for name := range consts {
		if !strings.Contains(string(src), "finding."+name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		t.Errorf("pkg/detector/registry.go has no factory for: %s", strings.Join(missing, ", "))
	}
}
