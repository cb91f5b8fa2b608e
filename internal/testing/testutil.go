package testing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"

	"github.com/aspira-app/aspira/api/internal/db"
)

/* TestDB holds test database connection */
type TestDB struct {
	DB      *sql.DB
	Queries *db.Queries
}

/* SetupTestDB creates a test database connection */
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	/* Use test database from environment or default */
	testDBName := os.Getenv("TEST_DB_NAME")
	if testDBName == "" {
		testDBName = "aspira_test"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "aspira"),
		getEnv("TEST_DB_PASSWORD", "aspira"),
		testDBName,
	)

	/* Connect to postgres database first to create test database */
	postgresDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "aspira"),
		getEnv("TEST_DB_PASSWORD", "aspira"),
	)

	postgresDB, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer postgresDB.Close()

	_, err = postgresDB.Exec(fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname = '%s'", testDBName))
	if err != nil {
		_, err = postgresDB.Exec(fmt.Sprintf("CREATE DATABASE %s", testDBName))
		if err != nil {
			t.Fatalf("Failed to create test database: %v", err)
		}
	}

	testDB, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := testDB.PingContext(ctx); err != nil {
		testDB.Close()
		t.Fatalf("Failed to ping test database: %v", err)
	}

	if err := runMigrations(testDB); err != nil {
		testDB.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	queries := db.NewQueries(testDB)

	return &TestDB{
		DB:      testDB,
		Queries: queries,
	}
}

/* CleanupTestDB cleans up test database */
func (tdb *TestDB) CleanupTestDB(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tables := []string{
		"feedback_records",
		"audit_logs",
		"pending_actions",
		"api_keys",
		"team_policies",
		"team_members",
		"teams",
		"user_settings",
		"users",
	}

	for _, table := range tables {
		_, err := tdb.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			t.Logf("Warning: Failed to truncate %s: %v", table, err)
		}
	}

	tdb.DB.Close()
}

/* CreateTestUser creates a test user */
func CreateTestUser(ctx context.Context, queries *db.Queries, username, password string) (*db.User, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		IsAdmin:      false,
	}

	if err := queries.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

/* CreateTestAdmin creates a test admin user */
func CreateTestAdmin(ctx context.Context, queries *db.Queries, username, password string) (*db.User, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		IsAdmin:      true,
	}

	if err := queries.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

/* CreateTestTeam creates a team with the given user as owner */
func CreateTestTeam(ctx context.Context, queries *db.Queries, ownerID, name, slug string) (*db.Team, error) {
	team := &db.Team{Name: name, Slug: slug}
	if err := queries.CreateTeam(ctx, team); err != nil {
		return nil, err
	}

	member := &db.TeamMember{TeamID: team.ID, UserID: ownerID, Role: "owner"}
	if err := queries.AddTeamMember(ctx, member); err != nil {
		return nil, err
	}

	return team, nil
}

/* runMigrations runs database migrations. The audit_logs table revokes
   UPDATE and DELETE so the trail is append-only at the storage layer,
   matching production. */
func runMigrations(db *sql.DB) error {
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
		/* The revoke does not bind the table owner, so a trigger backs
		   it up. TRUNCATE stays allowed for test cleanup. */
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
