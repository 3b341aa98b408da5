// Package urlutil resolves and decomposes the URLs video hosts hand out,
// preserving their original encoding.
package urlutil

import (
	"net/url"
	"strings"
)

// ResolveURL resolves ref against base with string manipulation.
// url.ResolveReference re-encodes characters like parentheses, which some
// CDNs sign into their tokens.
func ResolveURL(ref, base string) string {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, "//"):
		return schemeOf(base) + ":" + ref
	case strings.HasPrefix(ref, "/"):
		return Origin(base) + ref
	}

	dir := baseDirectory(base)
	for strings.HasPrefix(ref, "../") {
		ref = ref[3:]
		dir = strings.TrimSuffix(dir, "/")
		if i := strings.LastIndex(dir, "/"); i > 0 && !strings.HasSuffix(dir[:i], ":/") {
			dir = dir[:i+1]
		} else {
			dir += "/"
		}
	}
	return dir + strings.TrimPrefix(ref, "./")
}

// EnsureScheme turns a protocol-relative URL into an https one.
func EnsureScheme(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// Origin returns scheme://host for u, or "" when u does not parse.
func Origin(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Referer returns the origin of u with a trailing slash, the form embed
// hosts expect in the Referer header.
func Referer(u string) string {
	if o := Origin(u); o != "" {
		return o + "/"
	}
	return ""
}

// Host returns the host of u without port.
func Host(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func baseDirectory(u string) string {
	if i := strings.IndexAny(u, "?#"); i > 0 {
		u = u[:i]
	}
	if i := strings.LastIndex(u, "/"); i > 0 && !strings.HasSuffix(u[:i], ":/") {
		return u[:i+1]
	}
	return u + "/"
}

func schemeOf(u string) string {
	if i := strings.Index(u, "://"); i > 0 {
		return u[:i]
	}
	return "https"
}
