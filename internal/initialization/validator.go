package initialization

import (
	"context"
	"fmt"

	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/logging"
)

/* Validator validates configuration and data at startup */
type Validator struct {
	logger *logging.Logger
}

/* NewValidator creates a new validator instance */
func NewValidator(logger *logging.Logger) *Validator {
	return &Validator{
		logger: logger,
	}
}

/* ValidationResult represents the result of validation */
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

/* ValidateAdminUser validates admin user configuration */
func (v *Validator) ValidateAdminUser(ctx context.Context, queries *db.Queries) ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	adminUser, err := queries.GetUserByUsername(ctx, "admin")
	if err != nil {
		result.Errors = append(result.Errors, "Admin user does not exist")
		result.Valid = false
		return result
	}

	if !adminUser.IsAdmin {
		result.Errors = append(result.Errors, "Admin user exists but lacks the admin flag")
		result.Valid = false
	}
	if adminUser.PasswordHash == "" {
		result.Errors = append(result.Errors, "Admin user has no password hash")
		result.Valid = false
	}

	return result
}

/* ValidateSystemDefaults validates the governance defaults that apply to
   users with no saved settings. Auto-approval of critical actions is
   rejected outright. */
func (v *Validator) ValidateSystemDefaults(defaults governance.SystemDefaults) ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	if defaults.ConfidenceThreshold < 0 || defaults.ConfidenceThreshold > 1 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Confidence threshold %v is outside [0, 1]", defaults.ConfidenceThreshold))
		result.Valid = false
	}

	if defaults.AutoApprove[governance.RiskCritical] {
		result.Errors = append(result.Errors, "Critical actions can never be auto-approved")
		result.Valid = false
	}

	if defaults.ActionsEnabled {
		result.Warnings = append(result.Warnings,
			"Agent actions are enabled by default; users normally opt in per user")
	}

	return result
}
