package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a request validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

const (
	maxCommentLength = 2000
	maxNameLength    = 100
)

// ValidateActionProposal validates an agent action proposal
func ValidateActionProposal(actionType string, confidence float64, payload map[string]interface{}) []error {
	var errors []error

	if strings.TrimSpace(actionType) == "" {
		errors = append(errors, &ValidationError{
			Field:   "action_type",
			Message: "action_type is required",
		})
	}

	if confidence < 0 || confidence > 1 {
		errors = append(errors, &ValidationError{
			Field:   "confidence",
			Message: "confidence must be between 0 and 1",
		})
	}

	if payload == nil {
		errors = append(errors, &ValidationError{
			Field:   "payload",
			Message: "payload is required",
		})
	}

	return errors
}

// ValidateConfidenceThreshold validates a user-chosen confidence threshold
func ValidateConfidenceThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return &ValidationError{
			Field:   "confidence_threshold",
			Message: "confidence_threshold must be between 0 and 1",
		}
	}
	return nil
}

// ValidateComment validates a free-text comment field
func ValidateComment(comment, fieldName string) error {
	if len(comment) > maxCommentLength {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("%s must be at most %d characters", fieldName, maxCommentLength),
		}
	}
	return nil
}

// ValidateRating validates a 1-5 feedback rating
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return &ValidationError{
			Field:   "rating",
			Message: "rating must be between 1 and 5",
		}
	}
	return nil
}

// ValidateTeamName validates a team display name
func ValidateTeamName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{
			Field:   "name",
			Message: "name is required",
		}
	}
	if len(name) > maxNameLength {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("name must be at most %d characters", maxNameLength),
		}
	}
	return nil
}

// ValidateTeamSlug validates a team slug
func ValidateTeamSlug(slug string) error {
	if slug == "" {
		return &ValidationError{
			Field:   "slug",
			Message: "slug is required",
		}
	}
	if !slugRegex.MatchString(slug) {
		return &ValidationError{
			Field:   "slug",
			Message: "slug must be lowercase letters, digits and hyphens",
		}
	}
	return nil
}

// ValidateTeamRole validates a team membership role
func ValidateTeamRole(role string) error {
	switch role {
	case "owner", "admin", "member":
		return nil
	}
	return &ValidationError{
		Field:   "role",
		Message: "role must be one of owner, admin, member",
	}
}
