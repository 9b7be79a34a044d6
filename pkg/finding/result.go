package finding

import "time"

// Secret is a credential-like value found in a response body. Value is
// always masked; the raw value never leaves the analyzer.
type Secret struct {
	Type    string  `json:"type"`
	Value   string  `json:"value"`
	Entropy float64 `json:"entropy,omitempty"`
	Line    int     `json:"line,omitempty"`
	Column  int     `json:"column,omitempty"`
	Context string  `json:"context,omitempty"`
}

// DebugStatement is a leftover debugging call found in JavaScript.
type DebugStatement struct {
	Kind string `json:"kind"` // console, debugger, alert
	Line int    `json:"line"`
	Code string `json:"code"`
}

// ConfigObject is a JavaScript object literal that carries sensitive keys.
// Only the key names are kept.
type ConfigObject struct {
	Name string   `json:"name"`
	Keys []string `json:"keys"`
}

// ExtractedData is the categorized output of content analysis.
type ExtractedData struct {
	Secrets      []Secret         `json:"secrets,omitempty"`
	APIEndpoints []string         `json:"api_endpoints,omitempty"`
	InternalIPs  []string         `json:"internal_ips,omitempty"`
	Emails       []string         `json:"emails,omitempty"`
	AWSKeys      []string         `json:"aws_keys,omitempty"`
	PrivateKeys  []string         `json:"private_keys,omitempty"`
	GitRepos     []string         `json:"git_repos,omitempty"`
	SourceMaps   []string         `json:"source_maps,omitempty"`
	DebugCode    []DebugStatement `json:"debug_code,omitempty"`
	Configs      []ConfigObject   `json:"configs,omitempty"`
}

// IsEmpty reports whether nothing was extracted.
func (d *ExtractedData) IsEmpty() bool {
	if d == nil {
		return true
	}
	return len(d.Secrets) == 0 && len(d.APIEndpoints) == 0 && len(d.InternalIPs) == 0 &&
		len(d.Emails) == 0 && len(d.AWSKeys) == 0 && len(d.PrivateKeys) == 0 &&
		len(d.GitRepos) == 0 && len(d.SourceMaps) == 0 && len(d.DebugCode) == 0 &&
		len(d.Configs) == 0
}

// Merge folds other into d. String lists are de-duplicated while keeping
// first-seen order; secrets are de-duplicated on (type, value).
func (d *ExtractedData) Merge(other *ExtractedData) {
	if other == nil {
		return
	}
	d.APIEndpoints = appendUnique(d.APIEndpoints, other.APIEndpoints...)
	d.InternalIPs = appendUnique(d.InternalIPs, other.InternalIPs...)
	d.Emails = appendUnique(d.Emails, other.Emails...)
	d.AWSKeys = appendUnique(d.AWSKeys, other.AWSKeys...)
	d.PrivateKeys = appendUnique(d.PrivateKeys, other.PrivateKeys...)
	d.GitRepos = appendUnique(d.GitRepos, other.GitRepos...)
	d.SourceMaps = appendUnique(d.SourceMaps, other.SourceMaps...)
	d.DebugCode = append(d.DebugCode, other.DebugCode...)
	d.Configs = append(d.Configs, other.Configs...)

	seen := make(map[string]bool, len(d.Secrets))
	for _, s := range d.Secrets {
		seen[s.Type+"\x00"+s.Value] = true
	}
	for _, s := range other.Secrets {
		key := s.Type + "\x00" + s.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		d.Secrets = append(d.Secrets, s)
	}
}

func appendUnique(dst []string, values ...string) []string {
	if len(values) == 0 {
		return dst
	}
	seen := make(map[string]bool, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

// Evidence captures the probe facts behind a detection.
type Evidence struct {
	Method         string            `json:"method"`
	StatusCode     int               `json:"status_code"`
	Headers        map[string]string `json:"headers,omitempty"`
	ContentType    string            `json:"content_type,omitempty"`
	ContentLength  int64             `json:"content_length"`
	ContentPreview string            `json:"content_preview,omitempty"`
	BodyHash       string            `json:"body_hash,omitempty"`
	ElapsedMs      int64             `json:"elapsed_ms"`
	FinalURL       string            `json:"final_url,omitempty"`
	Extracted      *ExtractedData    `json:"extracted_data,omitempty"`
}

// Result is a single detection: one rule matched one probe URL. Results
// are immutable once built and are handed to the sink as-is.
type Result struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	URL         string    `json:"url"`
	Hostname    string    `json:"hostname"`
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	RiskLevel   RiskLevel `json:"risk_level,omitempty"`
	CVSSScore   float64   `json:"cvss_score"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Evidence    Evidence  `json:"evidence"`
	Remediation string    `json:"remediation,omitempty"`
	References  []string  `json:"references,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Fingerprint string    `json:"simhash,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}
