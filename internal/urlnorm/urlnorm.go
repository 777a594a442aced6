// Package urlnorm validates and normalizes analysis target URLs.
package urlnorm

import (
	"net/url"
	"strings"

	"github.com/quietfield/a11yd/internal/errs"
)

// Normalize trims raw, prefixes https:// when no scheme is present, and
// strictly parses the result. Pure and deterministic; no side effects.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errs.New(errs.InvalidInput, "missing URL")
	}

	// Scheme matching is case-insensitive per RFC 3986.
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errs.Wrap(errs.InvalidInput, "invalid URL", err)
	}
	if u.Host == "" {
		return "", errs.New(errs.InvalidInput, "invalid URL: missing host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	return u.String(), nil
}
