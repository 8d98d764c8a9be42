package auth

import (
	"net/url"
	"strings"
)

// SafeNextURL returns raw when it is a path on this site, and "" otherwise.
// Absolute URLs, scheme-relative URLs ("//evil.example") and backslash tricks
// are rejected so the post-login redirect cannot leave the site.
func SafeNextURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return ""
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") || strings.ContainsAny(raw, "\r\n") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return raw
}
