package validation

import (
	"regexp"
	"strings"
)

/* Sensitive field patterns whose values never reach the audit trail */
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)`),
	regexp.MustCompile(`(?i)(secret|token|auth)`),
	regexp.MustCompile(`(?i)(credential|cred)`),
	regexp.MustCompile(`(?i)(ssn|social[_-]?security)`),
	regexp.MustCompile(`(?i)(credit[_-]?card|card[_-]?number)`),
	regexp.MustCompile(`(?i)(account[_-]?number|routing)`),
}

var (
	tokenLikeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
	emailLikeRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

/* RedactValue redacts a value if its key or shape looks sensitive.
   Action payloads carry recipient addresses and account references, so
   redaction runs before any payload is copied into audit details. */
func RedactValue(key string, value interface{}) interface{} {
	keyLower := strings.ToLower(key)

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(keyLower) {
			return "[REDACTED]"
		}
	}

	if str, ok := value.(string); ok && len(str) > 0 {
		if len(str) > 20 && tokenLikeRegex.MatchString(str) {
			return "[REDACTED]"
		}
		if emailLikeRegex.MatchString(str) {
			return "[REDACTED]"
		}
	}

	return value
}

/* RedactMap recursively redacts a map structure */
func RedactMap(data map[string]interface{}) map[string]interface{} {
	redacted := make(map[string]interface{})

	for key, value := range data {
		switch v := value.(type) {
		case map[string]interface{}:
			redacted[key] = RedactMap(v)
		case []interface{}:
			redacted[key] = RedactArray(v)
		default:
			redacted[key] = RedactValue(key, v)
		}
	}

	return redacted
}

/* RedactArray recursively redacts an array structure */
func RedactArray(data []interface{}) []interface{} {
	redacted := make([]interface{}, len(data))

	for i, item := range data {
		switch v := item.(type) {
		case map[string]interface{}:
			redacted[i] = RedactMap(v)
		case []interface{}:
			redacted[i] = RedactArray(v)
		default:
			redacted[i] = RedactValue("", v)
		}
	}

	return redacted
}
