// Package urlx provides URL helpers for partial navigation: stripping the
// internal marker parameter and splitting fragment identifiers.
package urlx

import (
	"net/url"
	"strings"
)

// MarkerParam is the query parameter appended to outgoing requests so the
// host's cache can tell a partial fetch apart from a normal page load. It is
// never shown to the user or stored in history.
const MarkerParam = "_pjax"

// Strip removes the marker parameter from a URL's query string, preserving
// the order of the remaining parameters. A query left empty by the removal
// is dropped entirely.
func Strip(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.RawQuery == "" {
		return rawURL
	}

	pairs := strings.Split(u.RawQuery, "&")
	kept := pairs[:0]
	for _, p := range pairs {
		key := p
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			key = p[:idx]
		}
		if key == MarkerParam {
			continue
		}
		kept = append(kept, p)
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

// Split decomposes a URL into its navigable equivalent and an optional
// fragment identifier. The fragment is returned without the leading "#".
func Split(rawURL string) (base, fragment string) {
	if idx := strings.IndexByte(rawURL, '#'); idx >= 0 {
		return rawURL[:idx], rawURL[idx+1:]
	}
	return rawURL, ""
}

// SameOrigin reports whether two URLs share scheme and host. Links to a
// different origin are never intercepted.
func SameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}

// HashOnlyChange reports whether target differs from current only by its
// fragment identifier, i.e. an in-page anchor jump.
func HashOnlyChange(current, target *url.URL) bool {
	if target.Fragment == "" && current.Fragment == "" {
		return false
	}
	c := *current
	t := *target
	c.Fragment = ""
	t.Fragment = ""
	c.RawFragment = ""
	t.RawFragment = ""
	return c.String() == t.String()
}

// Resolve resolves ref against base, returning ref unchanged when it is
// already absolute or base is nil.
func Resolve(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() || base == nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
