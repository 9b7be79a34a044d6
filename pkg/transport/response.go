package transport

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Request describes one probe.
type Request struct {
	URL     string
	Method  string            // default GET
	Timeout time.Duration     // zero means the transport default
	Headers map[string]string // added after the default headers
}

// Response is the ephemeral result of one probe. Body is capped; see
// Truncated.
type Response struct {
	URL        string // requested URL
	FinalURL   string // URL after redirects
	StatusCode int
	Header     http.Header
	Body       []byte
	Truncated  bool
	Elapsed    time.Duration
}

// HeaderValue returns the first value of the named header
// (case-insensitive).
func (r *Response) HeaderValue(name string) string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get(name)
}

// ContentType returns the Content-Type header.
func (r *Response) ContentType() string {
	return r.HeaderValue("Content-Type")
}

// DeclaredLength returns the Content-Length header value, if present and
// valid.
func (r *Response) DeclaredLength() (int64, bool) {
	v := strings.TrimSpace(r.HeaderValue("Content-Length"))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Size is the declared Content-Length, or the body length when the server
// did not declare one.
func (r *Response) Size() int64 {
	if n, ok := r.DeclaredLength(); ok {
		return n
	}
	return int64(len(r.Body))
}

// Origin returns scheme://host of the requested URL, or "" when it does
// not parse as an absolute URL.
func (r *Response) Origin() string {
	if r == nil {
		return ""
	}
	return Origin(r.URL)
}

// Origin returns scheme://host for raw.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// HeaderMap flattens headers to lowercase name -> first value.
func (r *Response) HeaderMap() map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

// Text returns the body as a UTF-8 string. Bodies declared in another
// charset (Content-Type charset parameter) are decoded; invalid UTF-8
// without a declared charset is returned as-is.
func (r *Response) Text() string {
	if r == nil || len(r.Body) == 0 {
		return ""
	}
	label := charsetOf(r.ContentType())
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return string(r.Body)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return string(r.Body)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return string(r.Body)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), r.Body)
	if err != nil || !utf8.Valid(out) {
		return string(r.Body)
	}
	return string(out)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
