package logging

import (
	"net/netip"
	"regexp"
	"strings"
)

// Redactor masks PII in log values.
type Redactor struct {
	patterns []redactPattern
}

// redactPattern is a compiled regex and the function that masks a match.
type redactPattern struct {
	name    string
	regex   *regexp.Regexp
	replace func(string) string
}

// Pattern names.
const (
	PatternEmail       = "email"
	PatternIPv4        = "ipv4"
	PatternIPv6        = "ipv6"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
)

// NewRedactor creates a Redactor with the built-in patterns. Patterns are
// applied in order; bearer tokens go first so their contents are never
// partially matched by the address patterns.
func NewRedactor() *Redactor {
	password := regexp.MustCompile(`(?i)(password|passwd|pwd)[:=]\s*[^\s]+`)

	return &Redactor{patterns: []redactPattern{
		{
			name:    PatternBearerToken,
			regex:   regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`),
			replace: func(string) string { return "Bearer ***" },
		},
		{
			name:  PatternPassword,
			regex: password,
			replace: func(m string) string {
				return password.ReplaceAllString(m, "$1: ***")
			},
		},
		{
			name:    PatternEmail,
			regex:   regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
			replace: RedactEmail,
		},
		{
			name:    PatternIPv4,
			regex:   regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			replace: RedactIPv4,
		},
		{
			name:    PatternIPv6,
			regex:   regexp.MustCompile(`(?i)\b[0-9a-f]{1,4}(?::[0-9a-f]{0,4}){2,7}\b`),
			replace: RedactIPv6,
		},
	}}
}

// RedactString masks every PII match in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}

	redacted := value
	for _, p := range r.patterns {
		redacted = p.regex.ReplaceAllStringFunc(redacted, p.replace)
	}
	return redacted
}

// RedactField masks value, hiding it almost entirely when key names a
// secret.
func (r *Redactor) RedactField(key, value string) string {
	if isSensitiveKey(key) {
		return redactSecret(value)
	}
	return r.RedactString(value)
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	for _, sensitive := range []string{
		"password", "passwd", "pwd",
		"secret", "token", "api_key", "apikey",
		"authorization",
	} {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// redactSecret keeps a four character prefix for debugging.
func redactSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "***"
	}
	return v[:4] + "***"
}

// RedactEmail redacts an email address partially (shows first char and domain).
func RedactEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	if username == "" {
		return "***@" + domain
	}
	return username[:1] + "***@" + domain
}

// RedactIPv4 redacts an IPv4 address, keeping only the first octet.
func RedactIPv4(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return parts[0] + ".*.*.*"
}

// RedactIPv6 redacts an IPv6 address, keeping only the first group.
// Strings that do not parse as IPv6 are returned unchanged.
func RedactIPv6(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is6() {
		return ip
	}
	first, _, _ := strings.Cut(ip, ":")
	return first + ":*"
}
