// Package urlcanon produces the stable cache key used by the text and score
// caches, so the same posting visited through different tracking-parameter
// variants maps to one entry.
package urlcanon

import (
	"net/url"
	"sort"
	"strings"
)

// Tracking params dropped for cache key stability.
var dropParams = map[string]struct{}{
	// LinkedIn
	"trk":               {},
	"trackingId":        {},
	"refId":             {},
	"eBP":               {},
	"alternateChannel":  {},
	"lipi":              {},
	"originalSubdomain": {},
	// Generic marketing
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
}

// Canonicalize returns a stable form of rawURL:
//   - lower-case scheme and host
//   - fragment removed
//   - known tracking query params dropped, the rest kept sorted by key
//   - trailing slash stripped unless the path is exactly root
//
// It is a pure function and idempotent; the empty string maps to itself. A
// string that does not parse as a URL is returned trimmed but otherwise
// unchanged.
func Canonicalize(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	u.RawQuery = canonicalQuery(u.Query())
	return u.String()
}

func canonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		if _, drop := dropParams[k]; drop {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := append([]string(nil), q[k]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
