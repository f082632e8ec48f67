package log

import (
	"net/url"
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "secret", "auth",
	"credential", "private_key", "cookie",
}

// SanitizeField masks value when key names a secret, and strips credentials
// from URL values such as proxy addresses.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	if strings.Contains(value, "://") && strings.Contains(value, "@") {
		return sanitizeURL(value)
	}
	return value
}

// sanitizeToken keeps the first and last 4 characters of long values.
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// sanitizeURL masks the password of any URL userinfo.
func sanitizeURL(value string) string {
	u, err := url.Parse(value)
	if err != nil || u.User == nil {
		return value
	}
	return u.Redacted()
}
