package dedup

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters that never change what a URL
// points at.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
}

func isTrackingParam(name string) bool {
	return trackingParams[name] || strings.HasPrefix(name, "utm_")
}

// NormalizeURL canonicalizes raw for duplicate detection: the fragment is
// dropped, tracking parameters (utm_*, fbclid, gclid) are removed and the
// remaining query parameters are sorted by name. Unparseable input is
// returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	q := u.Query()
	for name := range q {
		if isTrackingParam(name) {
			delete(q, name)
		}
	}
	// Encode sorts by key; values keep their original order.
	u.RawQuery = q.Encode()
	return u.String()
}
