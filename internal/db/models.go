package db

import (
	"time"

	"github.com/aspira-app/aspira/api/internal/governance"
)

/* User represents a user account */
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"` // Never serialize password hash
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

/* Team represents a team/workspace whose policy governs its members */
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

/* TeamMember represents a user's membership in a team */
type TeamMember struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"` // 'owner', 'admin', 'member'
	CreatedAt time.Time `json:"created_at"`
}

/* UserSettingsRow stores a user's agent preferences. The settings body is
   a single JSONB column so a write replaces the whole document atomically. */
type UserSettingsRow struct {
	UserID    string                  `json:"user_id"`
	Settings  governance.UserSettings `json:"settings"`
	UpdatedAt time.Time               `json:"updated_at"`
}

/* TeamPolicyRow stores a team's governance policy. Written only by team
   admins; the JSONB body is replaced in one statement so concurrent
   readers see either the old or the new policy in full. */
type TeamPolicyRow struct {
	TeamID    string                `json:"team_id"`
	Policy    governance.TeamPolicy `json:"policy"`
	UpdatedBy string                `json:"updated_by"`
	UpdatedAt time.Time             `json:"updated_at"`
}

/* ActionStatus is the confirmation-phase state of a pending action.
   pending is the only non-terminal state. */
type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusConfirmed ActionStatus = "confirmed"
	StatusExecuted  ActionStatus = "executed"
	StatusCancelled ActionStatus = "cancelled"
	StatusExpired   ActionStatus = "expired"
	StatusFailed    ActionStatus = "failed"
)

/* PendingAction is an agent-proposed action awaiting (or past) its human
   decision. Rows are never deleted; terminal rows are retained for audit. */
type PendingAction struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	SessionID       string                 `json:"session_id,omitempty"`
	ActionType      string                 `json:"action_type"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	RiskTier        governance.RiskTier    `json:"risk_tier"`
	ConfidenceScore float64                `json:"confidence_score"`
	Status          ActionStatus           `json:"status"`
	RejectionReason *string                `json:"rejection_reason,omitempty"`
	ExecutionResult map[string]interface{} `json:"execution_result,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ExpiresAt       time.Time              `json:"expires_at"`
	ConfirmedAt     *time.Time             `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time             `json:"cancelled_at,omitempty"`
}

/* FeedbackRecord associates a decision with how long it took and why.
   Append-only. */
type FeedbackRecord struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ActionID         string    `json:"action_id"`
	DecisionType     string    `json:"decision_type"` // 'confirmation', 'rejection'
	Rating           *int      `json:"rating,omitempty"`
	Comment          *string   `json:"comment,omitempty"`
	RejectionReason  *string   `json:"rejection_reason,omitempty"`
	TimeToDecisionMS int64     `json:"time_to_decision_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

/* APIKey is a credential for agent callers. The agent service proposes
   actions on a user's behalf with a key bound to that user. */
type APIKey struct {
	ID         string     `json:"id"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

/* AuditLog represents an audit log entry. Insert-only: the table policy
   denies UPDATE and DELETE at the storage layer. */
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   *string                `json:"resource_id,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	IPAddress    *string                `json:"ip_address,omitempty"`
	UserAgent    *string                `json:"user_agent,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
