package validation

import (
	"fmt"
	"net/url"
	"strings"
)

/* ValidateURL reports whether a string is usable as a provider gateway
   endpoint: an absolute http(s) URL with a host and no credentials or
   fragment baked in. Gateway auth travels in headers, never in the URL. */
func ValidateURL(urlStr string) bool {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return false
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	if parsed.User != nil || parsed.Fragment != "" {
		return false
	}

	return true
}

/* ValidateURLRequired rejects empty or malformed gateway endpoints at
   startup, so a misconfigured channel fails loudly instead of failing
   on the first dispatch */
func ValidateURLRequired(urlStr, fieldName string) error {
	if strings.TrimSpace(urlStr) == "" {
		return fmt.Errorf("%s is required and cannot be empty", fieldName)
	}

	if !ValidateURL(urlStr) {
		return fmt.Errorf("%s must be an absolute http(s) URL without credentials", fieldName)
	}

	return nil
}
