package validator

import (
	"net/url"
	"strings"
)

// NormalizeTargetURL prepares user input for storage.
// Input without an http:// or https:// prefix gets https:// prepended
// ("example.com" -> "https://example.com"). Only empty or unparseable
// input is rejected.
func NormalizeTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	if !hasHTTPScheme(raw) {
		raw = "https://" + raw
	}

	if _, err := url.Parse(raw); err != nil {
		return "", ErrInvalidURL
	}

	return raw, nil
}

func hasHTTPScheme(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
