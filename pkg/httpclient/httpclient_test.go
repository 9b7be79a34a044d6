package httpclient

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ZeroConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	client, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 100, tr.MaxIdleConns)
	assert.Equal(t, 25, tr.MaxConnsPerHost)
}

func TestNew_RespectsInsecureSkipVerify(t *testing.T) {
	t.Parallel()
	client, err := New(Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	tr := client.Transport.(*http.Transport)
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
}

func redirectChain(t *testing.T, hops int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
		if n < hops {
			http.Redirect(w, r, fmt.Sprintf("/%d", n+1), http.StatusFound)
			return
		}
		fmt.Fprint(w, "done")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RedirectPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		maxRedirects int
		hops         int
		wantStatus   int
		wantPath     string
	}{
		{"no follow", 0, 2, http.StatusFound, "/0"},
		{"within limit", 5, 3, http.StatusOK, "/3"},
		{"exactly limit", 5, 5, http.StatusOK, "/5"},
		{"over limit keeps last redirect", 5, 8, http.StatusFound, "/5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := redirectChain(t, tt.hops)
			client, err := New(Config{MaxRedirects: tt.maxRedirects})
			require.NoError(t, err)

			resp, err := client.Get(srv.URL + "/0")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantPath, resp.Request.URL.Path)
		})
	}
}

func TestNew_Proxy(t *testing.T) {
	t.Parallel()

	client, err := New(Config{Proxy: "http://127.0.0.1:8080"})
	require.NoError(t, err)
	tr := client.Transport.(*http.Transport)
	require.NotNil(t, tr.Proxy)

	client, err = New(Config{Proxy: "socks5://user:pw@127.0.0.1:1080"})
	require.NoError(t, err)
	tr = client.Transport.(*http.Transport)
	assert.Nil(t, tr.Proxy)
	assert.NotNil(t, tr.DialContext)

	_, err = New(Config{Proxy: "ftp://127.0.0.1:21"})
	assert.ErrorIs(t, err, ErrInvalidProxy)
}

func TestParseProxyURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"127.0.0.1:8080", "http://127.0.0.1:8080", false},
		{"https://proxy.local:443", "https://proxy.local:443", false},
		{"socks5h://127.0.0.1:9050", "socks5h://127.0.0.1:9050", false},
		{"socks4://127.0.0.1:1080", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			u, err := ParseProxyURL(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidProxy)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, u)
				return
			}
			assert.Equal(t, tt.want, u.String())
		})
	}
}

// TestNoRawHTTPClient ensures code uses httpclient.New() instead of
// building clients or transports by hand.
func TestNoRawHTTPClient(t *testing.T) {
	t.Parallel()
	for _, typ := range []string{"Client", "Transport"} {
		for _, v := range findRawLiterals(t, typ) {
			t.Errorf("raw &http.%s{} literal, use httpclient.New(): %s", typ, v)
		}
	}
}

func findRawLiterals(t *testing.T, typeName string) []string {
	t.Helper()

	var violations []string
	root := findProjectRoot(t)

	for _, dir := range []string{"pkg", "cmd"} {
		dirPath := filepath.Join(root, dir)
		if _, err := os.Stat(dirPath); os.IsNotExist(err) {
			continue
		}

		_ = filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() || !strings.HasSuffix(path, ".go") {
				return nil
			}
			if strings.HasSuffix(path, "_test.go") || filepath.Base(path) == "httpclient.go" {
				return nil
			}

			fset := token.NewFileSet()
			node, err := parser.ParseFile(fset, path, nil, 0)
			if err != nil {
				return nil
			}

			ast.Inspect(node, func(n ast.Node) bool {
				unary, ok := n.(*ast.UnaryExpr)
				if !ok {
					return true
				}
				comp, ok := unary.X.(*ast.CompositeLit)
				if !ok || !isHTTPType(comp.Type, typeName) {
					return true
				}
				pos := fset.Position(comp.Pos())
				rel, _ := filepath.Rel(root, pos.Filename)
				violations = append(violations, rel+":"+strconv.Itoa(pos.Line))
				return true
			})
			return nil
		})
	}
	return violations
}

func isHTTPType(expr ast.Expr, name string) bool {
	if sel, ok := expr.(*ast.SelectorExpr); ok {
		if ident, ok := sel.X.(*ast.Ident); ok {
			return ident.Name == "http" && sel.Sel.Name == name
		}
	}
	return false
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find project root (go.mod)")
		}
		dir = parent
	}
}
