package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches token-bearing patterns in log/event/error strings.
// The gateway bearer token is 48 lowercase hex chars and travels as a CLI
// flag, an env value, and a URL query parameter; all three shapes are covered.
var secretPatterns = []*regexp.Regexp{
	// token/secret flags and assignments (--token abc, token=abc, "token": "abc")
	regexp.MustCompile(`(?i)(--token\s+|token"?\s*[:=]\s*"?|secret"?\s*[:=]\s*"?)([A-Za-z0-9_\-./+=]{16,})"?`),
	// Bearer tokens in Authorization headers
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// token query parameter in control UI URLs
	regexp.MustCompile(`(?i)([?&]token=)([A-Za-z0-9%_\-./+=]{16,})`),
	// bare gateway tokens (48 hex chars)
	regexp.MustCompile(`\b[0-9a-f]{48}\b`),
}

// Redact replaces token-bearing patterns in the input string with [REDACTED].
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			// For patterns with a prefix group, keep the prefix and redact the value.
			submatch := pat.FindStringSubmatch(match)
			if len(submatch) >= 3 {
				return submatch[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}

// RedactEnvValue checks if a key name looks secret and returns redacted value if so.
func RedactEnvValue(key, value string) string {
	keyLower := strings.ToLower(key)
	sensitiveKeys := []string{"token", "secret", "password", "credential", "api_key", "apikey"}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return redactedPlaceholder
		}
	}
	return value
}
