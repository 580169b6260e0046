package util

import (
	"net/url"
	"strings"
)

// HideSecret obscures a secret for logging, showing only the first and last
// few characters.
func HideSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	} else if len(secret) > 4 {
		return secret[:2] + "..." + secret[len(secret)-2:]
	} else if len(secret) > 2 {
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return secret
}

// MaskDSN masks the password and sensitive query parameters of a connection
// string so it can be logged. Unparseable inputs are masked wholesale rather
// than leaked.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	parsed, errParse := url.Parse(dsn)
	if errParse != nil || parsed.Scheme == "" {
		if strings.Contains(dsn, "password=") || strings.Contains(dsn, "@") {
			return HideSecret(dsn)
		}
		return dsn
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
		}
	}
	parsed.RawQuery = maskSensitiveQuery(parsed.RawQuery)
	return parsed.String()
}

// maskSensitiveQuery masks credential-bearing query parameters in place.
func maskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		keyPart := part
		valuePart := ""
		if idx := strings.Index(part, "="); idx >= 0 {
			keyPart = part[:idx]
			valuePart = part[idx+1:]
		}
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if !shouldMaskQueryParam(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		masked := HideSecret(strings.TrimSpace(decodedValue))
		parts[i] = keyPart + "=" + url.QueryEscape(masked)
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func shouldMaskQueryParam(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if key == "password" || key == "pass" || key == "sslpassword" {
		return true
	}
	if strings.Contains(key, "token") || strings.Contains(key, "secret") || strings.Contains(key, "key") {
		return true
	}
	return false
}
