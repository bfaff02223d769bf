// Package urlutil provides URL manipulation utilities used when resolving
// playlist and segment references against the URL they were fetched from.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// URL scheme constants.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Resolve resolves a reference URL (absolute or relative) against a base URL,
// following the same semantics a browser uses for relative links. This is the
// primitive the playlist parser uses to turn a relative variant or segment
// URL into an absolute one, per RFC 3986 reference resolution rather than
// naive string concatenation.
func Resolve(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing reference URL: %w", err)
	}
	return base.ResolveReference(parsedRef).String(), nil
}

// ValidateURL checks if a URL is valid and uses a supported scheme (http or https).
// Returns nil if valid, or an error describing the problem.
func ValidateURL(u string) error {
	if u == "" {
		return fmt.Errorf("URL is required")
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case SchemeHTTP, SchemeHTTPS:
		return nil
	case "":
		return fmt.Errorf("URL must include a scheme (http:// or https://)")
	default:
		return fmt.Errorf("unsupported URL scheme: %s (supported: http, https)", scheme)
	}
}
