package common

import (
	"net/url"
	"strings"
)

// JoinURL joins a site route onto a base URL without doubling slashes.
// Absolute routes are returned unchanged.
func JoinURL(base, route string) string {
	if strings.HasPrefix(route, "http://") || strings.HasPrefix(route, "https://") {
		return route
	}
	base = strings.TrimRight(base, "/")
	if route == "" {
		return base + "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return base + route
}

// ResolveReference resolves a possibly relative href against the page URL
func ResolveReference(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// SameHost reports whether two absolute URLs share a host
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}

// IsHTTPURL reports whether s is an absolute http(s) URL
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
