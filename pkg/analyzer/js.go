package analyzer

import (
	"slices"
	"strings"

	"github.com/sensinfor/sensinfor/pkg/finding"
	"github.com/sensinfor/sensinfor/pkg/regexcache"
)

const bt = "`"

var (
	jsEndpointPatterns = []struct {
		re    string
		group int
	}{
		{`fetch\s*\(\s*['"` + bt + `]([^'"` + bt + `]+)['"` + bt + `]`, 1},
		{`axios\.(?:get|post|put|delete|patch)\s*\(\s*['"` + bt + `]([^'"` + bt + `]+)['"` + bt + `]`, 1},
		{`url\s*:\s*['"` + bt + `]([^'"` + bt + `]+)['"` + bt + `]`, 1},
		{`['"` + bt + `](/api/[^'"` + bt + `]+)['"` + bt + `]`, 1},
		{`['"` + bt + `](/v\d+/[^'"` + bt + `]+)['"` + bt + `]`, 1},
	}

	jsConfigPatterns = []string{
		`const\s+(\w*[Cc]onfig\w*)\s*=\s*\{([^}]+)\}`,
		`var\s+(API_\w+|[A-Z_]+CONFIG)\s*=\s*\{([^}]+)\}`,
		`window\.(\w*[Cc]onfig\w*)\s*=\s*\{([^}]+)\}`,
	}

	reSourceMap   = regexcache.MustGet(`//[@#]\s*sourceMappingURL=(\S+)`)
	reConsoleCall = regexcache.MustGet(`console\.(?:log|debug|error|warn|info)\s*\(`)
	reAlertCall   = regexcache.MustGet(`alert\s*\(`)
	reObjectKey   = regexcache.MustGet(`['"]?([A-Za-z_$][\w$]*)['"]?\s*:`)
)

// configSensitiveKeys flag a JS config object worth reporting.
var configSensitiveKeys = []string{
	"apikey", "api_key", "secretkey", "secret_key", "password",
	"token", "accesskey", "privatekey", "clientsecret",
}

// analyzeJS extracts script-specific artifacts. Generic extraction is run
// separately by the caller.
func analyzeJS(code string) *finding.ExtractedData {
	return &finding.ExtractedData{
		APIEndpoints: jsEndpoints(code),
		SourceMaps:   jsSourceMaps(code),
		DebugCode:    jsDebugStatements(code),
		Configs:      jsConfigObjects(code),
	}
}

func jsEndpoints(code string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range jsEndpointPatterns {
		re := regexcache.MustGet(p.re)
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			ep := m[p.group]
			if !strings.HasPrefix(ep, "/") || seen[ep] {
				continue
			}
			seen[ep] = true
			out = append(out, ep)
		}
	}
	slices.Sort(out)
	return out
}

func jsSourceMaps(code string) []string {
	var out []string
	for _, m := range reSourceMap.FindAllStringSubmatch(code, -1) {
		out = append(out, m[1])
	}
	return out
}

func jsDebugStatements(code string) []finding.DebugStatement {
	var out []finding.DebugStatement
	for i, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if reConsoleCall.MatchString(trimmed) {
			out = append(out, finding.DebugStatement{Kind: "console", Line: i + 1, Code: trimmed})
		}
		if trimmed == "debugger;" || trimmed == "debugger" {
			out = append(out, finding.DebugStatement{Kind: "debugger", Line: i + 1, Code: trimmed})
		}
		if reAlertCall.MatchString(trimmed) {
			out = append(out, finding.DebugStatement{Kind: "alert", Line: i + 1, Code: trimmed})
		}
	}
	return out
}

// jsConfigObjects reports object literals that carry sensitive keys. Only
// key names are kept so no literal value leaves the analyzer.
func jsConfigObjects(code string) []finding.ConfigObject {
	var out []finding.ConfigObject
	for _, p := range jsConfigPatterns {
		for _, m := range regexcache.MustGet(p).FindAllStringSubmatch(code, -1) {
			body := m[2]
			if !containsAny(strings.ToLower(body), configSensitiveKeys) {
				continue
			}
			var keys []string
			for _, k := range reObjectKey.FindAllStringSubmatch(body, -1) {
				if !slices.Contains(keys, k[1]) {
					keys = append(keys, k[1])
				}
			}
			out = append(out, finding.ConfigObject{Name: m[1], Keys: keys})
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
