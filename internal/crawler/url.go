package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, sorts query parameters,
// gives an empty path a trailing slash and removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalize(u)
}

func normalize(u *url.URL) (string, error) {
	cp := *u
	cp.Scheme = strings.ToLower(cp.Scheme)
	if cp.Scheme != "http" && cp.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", cp.Scheme)
	}
	cp.Host = strings.ToLower(cp.Host)
	if cp.Host == "" {
		return "", fmt.Errorf("url %q has no host", u.String())
	}

	// Remove default ports
	if cp.Scheme == "http" && strings.HasSuffix(cp.Host, ":80") {
		cp.Host = strings.TrimSuffix(cp.Host, ":80")
	}
	if cp.Scheme == "https" && strings.HasSuffix(cp.Host, ":443") {
		cp.Host = strings.TrimSuffix(cp.Host, ":443")
	}

	if cp.Path == "" && cp.Opaque == "" {
		cp.Path = "/"
	}
	cp.Fragment = ""
	cp.RawFragment = ""

	// Sort query parameters
	if cp.RawQuery != "" {
		cp.RawQuery = cp.Query().Encode()
	}

	return cp.String(), nil
}
