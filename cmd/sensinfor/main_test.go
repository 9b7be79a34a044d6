package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensinfor/sensinfor/pkg/defaults"
	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/scanner"
)

const envBody = "DB_HOST=10.0.3.7\nDB_PASSWORD=Sup3rS3cretValue!\nAPP_DEBUG=true\n"

func exposedSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.env" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(envBody))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Commands(t *testing.T) {
	code, out, _ := execute("version")
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, "sensinfor "+defaults.Version)

	code, out, _ = execute("help")
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, "COMMANDS")

	code, _, errOut := execute("explode")
	assert.Equal(t, defaults.ExitUserError, code)
	assert.Contains(t, errOut, `unknown command "explode"`)

	code, _, _ = execute()
	assert.Equal(t, defaults.ExitUserError, code)
}

func TestScan_EndToEnd(t *testing.T) {
	srv := exposedSite(t)
	dir := t.TempDir()
	jsonl := filepath.Join(dir, "events.jsonl")
	report := filepath.Join(dir, "report.md")

	code, out, errOut := execute("scan",
		"-u", srv.URL,
		"-include", "env-file-leak",
		"-delay", "0s",
		"-retries", "0",
		"-no-color", "-no-banner",
		"-o", jsonl,
		"-format", "markdown",
		"-report", report)
	require.Equal(t, defaults.ExitFindings, code, errOut)

	assert.Contains(t, out, "[high] [config] [env-file-leak] "+srv.URL+"/.env [200]")
	assert.Contains(t, out, "Scan complete")

	events, err := os.ReadFile(jsonl)
	require.NoError(t, err)
	assert.Contains(t, string(events), `"type":"start"`)
	assert.Contains(t, string(events), `"type":"detection"`)
	assert.Contains(t, string(events), `"type":"complete"`)

	md, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# sensinfor report: "+srv.URL)
}

func TestScan_FailOnThreshold(t *testing.T) {
	srv := exposedSite(t)
	code, _, errOut := execute("scan", "-u", srv.URL,
		"-include", "env-file-leak", "-delay", "0s", "-silent",
		"-fail-on", "critical")
	assert.Equal(t, defaults.ExitSuccess, code, errOut)
}

func TestScan_ReportToStdout(t *testing.T) {
	srv := exposedSite(t)
	code, out, _ := execute("scan", "-u", srv.URL,
		"-include", "env-file-leak", "-delay", "0s", "-format", "csv")
	assert.Equal(t, defaults.ExitFindings, code)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "only the csv report is printed")
	assert.True(t, strings.HasPrefix(lines[0], "id,url,rule_id"))
	assert.Contains(t, lines[1], ",env-file-leak,config,high,")
}

func TestScan_UserErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"scan"}},
		{"bad mode", []string{"scan", "-u", "https://example.com", "-mode", "ludicrous"}},
		{"bad severity", []string{"scan", "-u", "https://example.com", "-fail-on", "dire"}},
		{"bad flag", []string{"scan", "-nope"}},
		{"bad format", []string{"scan", "-u", "https://example.com", "-format", "pdf"}},
		{"missing config", []string{"scan", "-u", "https://example.com", "-config", "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := execute(tt.args...)
			assert.Equal(t, defaults.ExitUserError, code)
		})
	}
}

func TestScan_ConfigFileAndMode(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sensinfor.yaml")
	require.NoError(t, os.WriteFile(p, []byte("concurrency: 7\nretry_count: 1\n"), 0o600))

	cfg, sf, err := parseScanFlags([]string{"-config", p, "-u", "https://example.com"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Concurrency)
	assert.Equal(t, 1, cfg.RetryCount)
	assert.Equal(t, []string{"https://example.com"}, []string(sf.targets))

	cfg, _, err = parseScanFlags([]string{"--mode=fast", "-c", "4", "https://a.example", "https://b.example"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, defaults.ModeFast, cfg.ScanMode)
	assert.Equal(t, 4, cfg.Concurrency, "explicit flags win over mode presets")
	assert.False(t, cfg.EnableContentAnalysis)
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte(envBody), 0o600))
	clean := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(clean, []byte("nothing to see here"), 0o600))

	code, out, _ := execute("analyze", "-no-color", env)
	assert.Equal(t, defaults.ExitFindings, code)
	assert.Contains(t, out, "[internal ip] 10.0.3.7")
	assert.NotContains(t, out, "Sup3rS3cretValue!")

	code, out, _ = execute("analyze", "-json", clean)
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, `"file"`)

	code, _, _ = execute("analyze")
	assert.Equal(t, defaults.ExitUserError, code)
	code, _, _ = execute("analyze", filepath.Join(dir, "missing"))
	assert.Equal(t, defaults.ExitUserError, code)
}

func TestRules(t *testing.T) {
	code, out, _ := execute("rules", "list", "-no-color")
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, "git-config-leak")
	assert.Contains(t, out, "csp-unsafe")

	code, out, _ = execute("rules", "list", "-include", "springboot-*", "-json")
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, `"springboot-actuator-env"`)
	assert.NotContains(t, out, `"git-config-leak"`)

	code, out, _ = execute("rules", "validate")
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, "rules OK")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules:\n  - id: broken\n    category: leak\n"), 0o600))
	code, out, _ = execute("rules", "validate", bad)
	assert.Equal(t, defaults.ExitUserError, code)
	assert.Contains(t, out, bad)

	code, out, _ = execute("rules", "formats")
	assert.Equal(t, defaults.ExitSuccess, code)
	assert.Contains(t, out, "markdown")

	code, _, _ = execute("rules")
	assert.Equal(t, defaults.ExitUserError, code)
}

func TestLookupFlag(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-mode", "fast"}, "fast"},
		{[]string{"--mode=thorough"}, "thorough"},
		{[]string{"-u", "x", "-mode=fast"}, "fast"},
		{[]string{"mode", "fast"}, ""},
		{[]string{"---mode", "fast"}, ""},
		{[]string{"--", "-mode", "fast"}, ""},
		{[]string{"-mode"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lookupFlag(tt.args, "mode"), tt.args)
	}
}

func TestStringSliceFlag(t *testing.T) {
	var s stringSliceFlag
	require.NoError(t, s.Set("a, b,,c"))
	require.NoError(t, s.Set("d"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string(s))
	assert.Equal(t, "a,b,c,d", s.String())
}

func TestSessionExitCode(t *testing.T) {
	tests := []struct {
		name string
		sess scanner.Session
		want int
	}{
		{"clean", scanner.Session{Status: scanner.StatusCompleted, TotalRules: 3}, defaults.ExitSuccess},
		{"findings", scanner.Session{Status: scanner.StatusCompleted, FindingsBySeverity: map[finding.Severity]int{finding.Low: 1}}, defaults.ExitFindings},
		{"below threshold", scanner.Session{Status: scanner.StatusCompleted, FindingsBySeverity: map[finding.Severity]int{finding.Info: 2}}, defaults.ExitSuccess},
		{"unreachable", scanner.Session{Status: scanner.StatusCompleted, TotalRules: 3, Errors: 3}, defaults.ExitNetworkError},
		{"failed", scanner.Session{Status: scanner.StatusFailed}, defaults.ExitInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sessionExitCode(tt.sess, finding.Low), tt.name)
	}
	assert.Equal(t, defaults.ExitNetworkError, worse(defaults.ExitFindings, defaults.ExitNetworkError))
	assert.Equal(t, defaults.ExitFindings, worse(defaults.ExitFindings, defaults.ExitSuccess))
}
