package validation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

/* ValidateUUID checks a route or body identifier (action, team, API key)
   before it reaches a query. Rejecting junk here keeps "malformed id"
   distinguishable from "no such row" at the handler layer. */
func ValidateUUID(s, fieldName string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if _, err := uuid.Parse(strings.ToLower(strings.TrimSpace(s))); err != nil {
		return fmt.Errorf("%s has invalid UUID format: %w", fieldName, err)
	}

	return nil
}
