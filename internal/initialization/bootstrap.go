package initialization

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/logging"
)

// Bootstrap handles all application initialization tasks
type Bootstrap struct {
	queries   *db.Queries
	logger    *logging.Logger
	validator *Validator
}

// NewBootstrap creates a new bootstrap instance
func NewBootstrap(queries *db.Queries, logger *logging.Logger) *Bootstrap {
	return &Bootstrap{
		queries:   queries,
		logger:    logger,
		validator: NewValidator(logger),
	}
}

// Initialize performs all initialization tasks in the correct order
func (b *Bootstrap) Initialize(ctx context.Context) error {
	metrics := NewBootstrapMetrics()
	defer metrics.Finish()
	defer metrics.LogMetrics(b.logger)

	b.logger.Info("Starting application bootstrap sequence", nil)

	// Step 1: Ensure database schema (with retry)
	stepStart := time.Now()
	if err := b.ensureSchemaWithRetry(ctx); err != nil {
		metrics.TrackStep("schema", time.Since(stepStart), false)
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	metrics.TrackStep("schema", time.Since(stepStart), true)

	// Step 2: Ensure default admin user exists (with retry)
	stepStart = time.Now()
	if _, err := b.ensureAdminUserWithRetry(ctx); err != nil {
		metrics.TrackStep("admin_user", time.Since(stepStart), false)
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	metrics.TrackStep("admin_user", time.Since(stepStart), true)

	// Step 3: Validate admin user
	validationStart := time.Now()
	if validation := b.validator.ValidateAdminUser(ctx, b.queries); !validation.Valid {
		b.logger.Info("Admin user validation failed", map[string]interface{}{
			"errors": validation.Errors,
		})
		metrics.TrackStep("validation", time.Since(validationStart), false)
	} else {
		metrics.TrackStep("validation", time.Since(validationStart), true)
	}

	// Step 4: Perform health check
	healthStart := time.Now()
	healthChecker := NewHealthChecker(b.queries, b.logger)
	healthStatus := healthChecker.CheckAll(ctx)
	metrics.TrackStep("health_check", time.Since(healthStart), healthStatus.Overall)
	if !healthStatus.Overall {
		b.logger.Info("Health check completed with issues", map[string]interface{}{
			"status": healthStatus.Status,
			"checks": healthStatus.Checks,
		})
	} else {
		b.logger.Info("Health check passed", map[string]interface{}{
			"status": healthStatus.Status,
		})
	}

	b.logger.Info("Application bootstrap completed successfully", map[string]interface{}{
		"total_duration": metrics.Duration.String(),
	})
	return nil
}

func (b *Bootstrap) ensureSchemaWithRetry(ctx context.Context) error {
	return RetryWithBackoff(ctx, b.logger, "ensure schema", b.ensureSchema)
}

// ensureAdminUserWithRetry ensures admin user exists with retry logic
func (b *Bootstrap) ensureAdminUserWithRetry(ctx context.Context) (*db.User, error) {
	var adminUser *db.User
	var err error

	retryFunc := func(ctx context.Context) error {
		adminUser, err = b.ensureAdminUser(ctx)
		return err
	}

	if err := RetryWithBackoff(ctx, b.logger, "ensure admin user", retryFunc); err != nil {
		return nil, err
	}

	return adminUser, nil
}

// ensureSchema applies the idempotent schema migrations. The audit_logs
// table revokes UPDATE and DELETE so the trail is append-only at the
// storage layer.
func (b *Bootstrap) ensureSchema(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS team_members (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL DEFAULT 'member',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(team_id, user_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_team_members_user_id ON team_members(user_id);`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			settings JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS team_policies (
			team_id TEXT PRIMARY KEY REFERENCES teams(id) ON DELETE CASCADE,
			policy JSONB NOT NULL,
			updated_by TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS pending_actions (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			session_id TEXT,
			action_type TEXT NOT NULL,
			payload JSONB,
			risk_tier TEXT NOT NULL,
			confidence_score DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			rejection_reason TEXT,
			execution_result JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			confirmed_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_actions_user_status ON pending_actions(user_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_actions_status_expires ON pending_actions(status, expires_at);`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			key_hash TEXT NOT NULL,
			key_prefix TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL DEFAULT 'agent',
			last_used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS feedback_records (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			action_id TEXT NOT NULL,
			decision_type TEXT NOT NULL,
			rating INTEGER,
			comment TEXT,
			rejection_reason TEXT,
			time_to_decision_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_records_user_id ON feedback_records(user_id);`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT,
			details JSONB,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);`,
		`REVOKE UPDATE, DELETE ON audit_logs FROM PUBLIC;`,
		// The revoke does not bind the table owner, which is the role
		// the service connects as. The trigger makes the table
		// append-only for every role.
		`CREATE OR REPLACE FUNCTION audit_logs_block_change() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'audit_logs is append-only';
		END;
		$$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS audit_logs_append_only ON audit_logs;`,
		`CREATE TRIGGER audit_logs_append_only
			BEFORE UPDATE OR DELETE ON audit_logs
			FOR EACH ROW EXECUTE FUNCTION audit_logs_block_change();`,
	}

	for _, migration := range migrations {
		if _, err := b.queries.GetDB().ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ensureAdminUser ensures the default admin user exists
func (b *Bootstrap) ensureAdminUser(ctx context.Context) (*db.User, error) {
	b.logger.Info("Checking for default admin user", nil)

	adminUser, err := b.queries.GetUserByUsername(ctx, "admin")
	if err == nil {
		return adminUser, nil
	}

	b.logger.Info("Creating default admin user", nil)

	// Get admin password from environment or generate a random one
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = fmt.Sprintf("admin-%d", time.Now().Unix())
		b.logger.Info("ADMIN_PASSWORD not set - using temporary password", map[string]interface{}{
			"password": adminPassword,
			"warning":  "Please set ADMIN_PASSWORD environment variable and change this password immediately",
		})
	}

	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if hashErr != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", hashErr)
	}

	adminUser = &db.User{
		Username:     "admin",
		IsAdmin:      true,
		PasswordHash: string(passwordHash),
	}

	if createErr := b.queries.CreateUser(ctx, adminUser); createErr != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", createErr)
	}

	return adminUser, nil
}
