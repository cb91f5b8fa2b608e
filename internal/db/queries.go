package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aspira-app/aspira/api/internal/governance"
)

// Queries provides database operations
type Queries struct {
	db *sql.DB
}

// NewQueries creates a new Queries instance
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// GetDB returns the underlying database connection
func (q *Queries) GetDB() *sql.DB {
	return q.db
}

// User operations

// CreateUser creates a new user
func (q *Queries) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, username, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.db.ExecContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt, user.UpdatedAt)
	return err
}

// GetUserByID gets a user by ID
func (q *Queries) GetUserByID(ctx context.Context, id string) (*User, error) {
	var user User
	query := `
		SELECT id, username, password_hash, is_admin, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername gets a user by username
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	query := `
		SELECT id, username, password_hash, is_admin, created_at, updated_at
		FROM users
		WHERE username = $1
	`
	err := q.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Team operations

// CreateTeam creates a new team
func (q *Queries) CreateTeam(ctx context.Context, team *Team) error {
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now()
	}
	team.UpdatedAt = time.Now()

	query := `
		INSERT INTO teams (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.db.ExecContext(ctx, query,
		team.ID, team.Name, team.Slug, team.CreatedAt, team.UpdatedAt)
	return err
}

// GetTeam gets a team by ID
func (q *Queries) GetTeam(ctx context.Context, id string) (*Team, error) {
	var team Team
	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM teams
		WHERE id = $1
	`
	err := q.db.QueryRowContext(ctx, query, id).Scan(
		&team.ID, &team.Name, &team.Slug, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// AddTeamMember adds a user to a team
func (q *Queries) AddTeamMember(ctx context.Context, member *TeamMember) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO team_members (id, team_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.db.ExecContext(ctx, query,
		member.ID, member.TeamID, member.UserID, member.Role, member.CreatedAt)
	return err
}

// GetTeamMember gets a membership row for (team, user)
func (q *Queries) GetTeamMember(ctx context.Context, teamID, userID string) (*TeamMember, error) {
	var member TeamMember
	query := `
		SELECT id, team_id, user_id, role, created_at
		FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`
	err := q.db.QueryRowContext(ctx, query, teamID, userID).Scan(
		&member.ID, &member.TeamID, &member.UserID, &member.Role, &member.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetTeamForUser returns the user's team membership, or nil if the user
// belongs to no team. Membership is an explicit input to settings
// resolution, not a hidden lookup inside the merge.
func (q *Queries) GetTeamForUser(ctx context.Context, userID string) (*TeamMember, error) {
	var member TeamMember
	query := `
		SELECT id, team_id, user_id, role, created_at
		FROM team_members
		WHERE user_id = $1
		ORDER BY created_at ASC
		LIMIT 1
	`
	err := q.db.QueryRowContext(ctx, query, userID).Scan(
		&member.ID, &member.TeamID, &member.UserID, &member.Role, &member.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListTeamMembers lists all members of a team
func (q *Queries) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	query := `
		SELECT id, team_id, user_id, role, created_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY created_at ASC
	`
	rows, err := q.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []TeamMember
	for rows.Next() {
		var member TeamMember
		if err := rows.Scan(&member.ID, &member.TeamID, &member.UserID, &member.Role, &member.CreatedAt); err != nil {
			continue
		}
		members = append(members, member)
	}
	return members, nil
}

// User settings operations

// GetUserSettings gets a user's saved agent preferences, or nil if the
// user has never saved any
func (q *Queries) GetUserSettings(ctx context.Context, userID string) (*governance.UserSettings, error) {
	var settingsJSON []byte
	query := `
		SELECT settings
		FROM user_settings
		WHERE user_id = $1
	`
	err := q.db.QueryRowContext(ctx, query, userID).Scan(&settingsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var settings governance.UserSettings
	if err := json.Unmarshal(settingsJSON, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpsertUserSettings replaces a user's saved preferences in one statement
func (q *Queries) UpsertUserSettings(ctx context.Context, userID string, settings *governance.UserSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_settings (user_id, settings, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET settings = $2, updated_at = $3
	`
	_, err = q.db.ExecContext(ctx, query, userID, settingsJSON, time.Now())
	return err
}

// Team policy operations

// GetTeamPolicy gets a team's governance policy, or nil if the team has
// none saved
func (q *Queries) GetTeamPolicy(ctx context.Context, teamID string) (*governance.TeamPolicy, error) {
	var policyJSON []byte
	query := `
		SELECT policy
		FROM team_policies
		WHERE team_id = $1
	`
	err := q.db.QueryRowContext(ctx, query, teamID).Scan(&policyJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var policy governance.TeamPolicy
	if err := json.Unmarshal(policyJSON, &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// UpsertTeamPolicy replaces a team's policy. The whole JSONB document is
// written in one statement, so a concurrent resolver sees either the old
// or the new policy in full.
func (q *Queries) UpsertTeamPolicy(ctx context.Context, teamID, updatedBy string, policy *governance.TeamPolicy) error {
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO team_policies (team_id, policy, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id) DO UPDATE SET policy = $2, updated_by = $3, updated_at = $4
	`
	_, err = q.db.ExecContext(ctx, query, teamID, policyJSON, updatedBy, time.Now())
	return err
}

// Pending action operations

// CreatePendingAction persists a new pending action
func (q *Queries) CreatePendingAction(ctx context.Context, action *PendingAction) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	if action.Status == "" {
		action.Status = StatusPending
	}

	payloadJSON, _ := json.Marshal(action.Payload)

	query := `
		INSERT INTO pending_actions (id, user_id, session_id, action_type, payload, risk_tier, confidence_score, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.db.ExecContext(ctx, query,
		action.ID, action.UserID, action.SessionID, action.ActionType, payloadJSON,
		string(action.RiskTier), action.ConfidenceScore, string(action.Status),
		action.CreatedAt, action.ExpiresAt)
	return err
}

const pendingActionColumns = `id, user_id, session_id, action_type, payload, risk_tier, confidence_score, status, rejection_reason, execution_result, created_at, expires_at, confirmed_at, cancelled_at`

func scanPendingAction(scan func(...interface{}) error) (*PendingAction, error) {
	var action PendingAction
	var payloadJSON, resultJSON []byte
	var sessionID, rejectionReason sql.NullString
	var confirmedAt, cancelledAt sql.NullTime

	err := scan(
		&action.ID, &action.UserID, &sessionID, &action.ActionType, &payloadJSON,
		&action.RiskTier, &action.ConfidenceScore, &action.Status, &rejectionReason,
		&resultJSON, &action.CreatedAt, &action.ExpiresAt, &confirmedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}

	if sessionID.Valid {
		action.SessionID = sessionID.String
	}
	if rejectionReason.Valid {
		action.RejectionReason = &rejectionReason.String
	}
	if confirmedAt.Valid {
		action.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		action.CancelledAt = &cancelledAt.Time
	}
	if len(payloadJSON) > 0 {
		json.Unmarshal(payloadJSON, &action.Payload)
	}
	if len(resultJSON) > 0 {
		json.Unmarshal(resultJSON, &action.ExecutionResult)
	}

	return &action, nil
}

// GetPendingActionOwned gets an action by (id, owner). A missing row and
// a row owned by someone else are indistinguishable: both return
// sql.ErrNoRows, so callers cannot probe other users' action ids.
func (q *Queries) GetPendingActionOwned(ctx context.Context, id, userID string) (*PendingAction, error) {
	query := `
		SELECT ` + pendingActionColumns + `
		FROM pending_actions
		WHERE id = $1 AND user_id = $2
	`
	row := q.db.QueryRowContext(ctx, query, id, userID)
	return scanPendingAction(row.Scan)
}

// GetPendingAction gets an action by id without an ownership filter.
// Internal use only (the sweeper); request paths go through
// GetPendingActionOwned.
func (q *Queries) GetPendingAction(ctx context.Context, id string) (*PendingAction, error) {
	query := `
		SELECT ` + pendingActionColumns + `
		FROM pending_actions
		WHERE id = $1
	`
	row := q.db.QueryRowContext(ctx, query, id)
	return scanPendingAction(row.Scan)
}

// ListPendingActions lists a user's actions still awaiting a decision
func (q *Queries) ListPendingActions(ctx context.Context, userID string) ([]PendingAction, error) {
	query := `
		SELECT ` + pendingActionColumns + `
		FROM pending_actions
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`
	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []PendingAction
	for rows.Next() {
		action, err := scanPendingAction(rows.Scan)
		if err != nil {
			continue
		}
		actions = append(actions, *action)
	}
	return actions, nil
}

// ConfirmPending transitions (id, owner) from pending to confirmed.
// The WHERE clause carries the whole state machine: only a still-pending,
// unexpired, owned row can transition, so of two concurrent confirms
// exactly one sees rowsAffected=1.
func (q *Queries) ConfirmPending(ctx context.Context, id, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE pending_actions
		SET status = 'confirmed', confirmed_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'pending' AND expires_at >= $3
	`
	res, err := q.db.ExecContext(ctx, query, id, userID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CancelPending transitions (id, owner) from pending to cancelled and
// records the categorized rejection reason
func (q *Queries) CancelPending(ctx context.Context, id, userID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE pending_actions
		SET status = 'cancelled', cancelled_at = $4, rejection_reason = $3
		WHERE id = $1 AND user_id = $2 AND status = 'pending' AND expires_at >= $4
	`
	res, err := q.db.ExecContext(ctx, query, id, userID, reason, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ExpireIfTimedOut flips a single timed-out row to expired. Conditional
// on status, so it loses cleanly against a concurrent confirm.
func (q *Queries) ExpireIfTimedOut(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE pending_actions
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending' AND expires_at < $2
	`
	res, err := q.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SweepExpired flips every timed-out pending row to expired and returns
// the ids it touched. Idempotent: a second sweep matches nothing.
func (q *Queries) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE pending_actions
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1
		RETURNING id
	`
	rows, err := q.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RecordExecutionResult moves a confirmed action to executed or failed
// and attaches the result payload
func (q *Queries) RecordExecutionResult(ctx context.Context, id string, status ActionStatus, result map[string]interface{}) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE pending_actions
		SET status = $2, execution_result = $3
		WHERE id = $1 AND status = 'confirmed'
	`
	_, err = q.db.ExecContext(ctx, query, id, string(status), resultJSON)
	return err
}

// Feedback operations

// CreateFeedback appends a feedback record. Feedback is never updated.
func (q *Queries) CreateFeedback(ctx context.Context, record *FeedbackRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO feedback_records (id, user_id, action_id, decision_type, rating, comment, rejection_reason, time_to_decision_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.ActionID, record.DecisionType,
		record.Rating, record.Comment, record.RejectionReason,
		record.TimeToDecisionMS, record.CreatedAt)
	return err
}

// FeedbackSummary aggregates decision latency and rejection reasons
type FeedbackSummary struct {
	TotalDecisions       int64            `json:"total_decisions"`
	Confirmations        int64            `json:"confirmations"`
	Rejections           int64            `json:"rejections"`
	AvgTimeToDecisionMS  int64            `json:"avg_time_to_decision_ms"`
	RejectionReasonCount map[string]int64 `json:"rejection_reason_counts"`
}

// GetFeedbackSummary computes a feedback summary for a user
func (q *Queries) GetFeedbackSummary(ctx context.Context, userID string) (*FeedbackSummary, error) {
	summary := &FeedbackSummary{
		RejectionReasonCount: make(map[string]int64),
	}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE decision_type = 'confirmation'),
		       COUNT(*) FILTER (WHERE decision_type = 'rejection'),
		       COALESCE(AVG(time_to_decision_ms), 0)::bigint
		FROM feedback_records
		WHERE user_id = $1
	`
	err := q.db.QueryRowContext(ctx, query, userID).Scan(
		&summary.TotalDecisions, &summary.Confirmations, &summary.Rejections, &summary.AvgTimeToDecisionMS)
	if err != nil {
		return nil, err
	}

	reasonQuery := `
		SELECT rejection_reason, COUNT(*)
		FROM feedback_records
		WHERE user_id = $1 AND rejection_reason IS NOT NULL
		GROUP BY rejection_reason
	`
	rows, err := q.db.QueryContext(ctx, reasonQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			continue
		}
		summary.RejectionReasonCount[reason] = count
	}

	return summary, nil
}

// Audit log operations

// CreateAuditLog appends an audit log entry
func (q *Queries) CreateAuditLog(ctx context.Context, entry *AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	detailsJSON, _ := json.Marshal(entry.Details)

	query := `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		detailsJSON, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

// ListAuditLogs lists audit log entries with optional filters
func (q *Queries) ListAuditLogs(ctx context.Context, userID, action, resourceType *string, limit int) ([]AuditLog, error) {
	query := `
		SELECT id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE ($1::text IS NULL OR user_id = $1)
		  AND ($2::text IS NULL OR action = $2)
		  AND ($3::text IS NULL OR resource_type = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := q.db.QueryContext(ctx, query, userID, action, resourceType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var detailsJSON []byte
		var resourceID, ipAddress, userAgent sql.NullString

		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.Action, &entry.ResourceType, &resourceID,
			&detailsJSON, &ipAddress, &userAgent, &entry.CreatedAt); err != nil {
			continue
		}

		if resourceID.Valid {
			entry.ResourceID = &resourceID.String
		}
		if ipAddress.Valid {
			entry.IPAddress = &ipAddress.String
		}
		if userAgent.Valid {
			entry.UserAgent = &userAgent.String
		}
		if len(detailsJSON) > 0 {
			json.Unmarshal(detailsJSON, &entry.Details)
		}

		logs = append(logs, entry)
	}

	return logs, nil
}

// API key operations

// CreateAPIKey creates an API key for an agent caller
func (q *Queries) CreateAPIKey(ctx context.Context, apiKey *APIKey) error {
	if apiKey.ID == "" {
		apiKey.ID = uuid.New().String()
	}
	if apiKey.CreatedAt.IsZero() {
		apiKey.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO api_keys (id, key_hash, key_prefix, user_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.db.ExecContext(ctx, query,
		apiKey.ID, apiKey.KeyHash, apiKey.KeyPrefix, apiKey.UserID,
		apiKey.Name, apiKey.CreatedAt)
	return err
}

// GetAPIKeyByPrefix gets an API key by prefix
func (q *Queries) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var apiKey APIKey
	var lastUsedAt sql.NullTime

	query := `
		SELECT id, key_hash, key_prefix, user_id, name, last_used_at, created_at
		FROM api_keys
		WHERE key_prefix = $1
	`
	err := q.db.QueryRowContext(ctx, query, prefix).Scan(
		&apiKey.ID, &apiKey.KeyHash, &apiKey.KeyPrefix, &apiKey.UserID,
		&apiKey.Name, &lastUsedAt, &apiKey.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUsedAt.Valid {
		apiKey.LastUsedAt = &lastUsedAt.Time
	}

	return &apiKey, nil
}

// UpdateAPIKeyLastUsed updates the last used timestamp
func (q *Queries) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`
	_, err := q.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// ListAPIKeys lists a user's API keys
func (q *Queries) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	query := `
		SELECT id, key_hash, key_prefix, user_id, name, last_used_at, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		var lastUsedAt sql.NullTime
		if err := rows.Scan(
			&key.ID, &key.KeyHash, &key.KeyPrefix, &key.UserID,
			&key.Name, &lastUsedAt, &key.CreatedAt); err != nil {
			continue
		}
		if lastUsedAt.Valid {
			key.LastUsedAt = &lastUsedAt.Time
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// DeleteAPIKey deletes a user's API key
func (q *Queries) DeleteAPIKey(ctx context.Context, id, userID string) error {
	query := `DELETE FROM api_keys WHERE id = $1 AND user_id = $2`
	_, err := q.db.ExecContext(ctx, query, id, userID)
	return err
}
