package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/events"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/logging"
	"github.com/aspira-app/aspira/api/internal/metrics"
	"github.com/aspira-app/aspira/api/internal/validation"
)

// Engine is the agent action governance engine: it decides whether an
// agent may act, tracks pending actions to a terminal state, and records
// the audit/feedback trail. All user ids come from the authenticated
// session; the engine never trusts a caller-supplied id.
type Engine struct {
	queries        *db.Queries
	executor       *Executor
	hub            *events.Hub
	logger         *logging.Logger
	defaults       governance.SystemDefaults
	rolloutPercent int

	// now is swappable in tests
	now func() time.Time
}

// rolloutFeature is the bucket key for the staged agent-actions rollout
const rolloutFeature = "agent_actions"

// NewEngine creates a governance engine
func NewEngine(queries *db.Queries, executor *Executor, hub *events.Hub, logger *logging.Logger, defaults governance.SystemDefaults) *Engine {
	return &Engine{
		queries:        queries,
		executor:       executor,
		hub:            hub,
		logger:         logger,
		defaults:       defaults,
		rolloutPercent: 100,
		now:            time.Now,
	}
}

// SetRolloutPercent gates agent actions behind a staged percentage
// rollout. Users outside the rollout see every proposal rejected as if
// actions were disabled for them.
func (e *Engine) SetRolloutPercent(percent int) {
	e.rolloutPercent = percent
}

// ProposeRequest is an agent-proposed action
type ProposeRequest struct {
	SessionID       string                 `json:"session_id,omitempty"`
	ActionType      string                 `json:"action_type"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	ConfidenceScore float64                `json:"confidence_score"`
}

// ProposeResult reports what happened to a proposal
type ProposeResult struct {
	AutoApproved    bool                   `json:"auto_approved"`
	PendingActionID string                 `json:"pending_action_id,omitempty"`
	Reason          governance.Reason      `json:"reason"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
	ExecutionResult map[string]interface{} `json:"execution_result,omitempty"`
}

// resolveFor computes the caller's effective settings. Team membership is
// looked up here and passed into the pure resolver explicitly.
func (e *Engine) resolveFor(ctx context.Context, userID string) (governance.EffectiveSettings, error) {
	userSettings, err := e.queries.GetUserSettings(ctx, userID)
	if err != nil {
		return governance.EffectiveSettings{}, fmt.Errorf("failed to load user settings: %w", err)
	}

	var teamPolicy *governance.TeamPolicy
	member, err := e.queries.GetTeamForUser(ctx, userID)
	if err != nil {
		return governance.EffectiveSettings{}, fmt.Errorf("failed to load team membership: %w", err)
	}
	if member != nil {
		teamPolicy, err = e.queries.GetTeamPolicy(ctx, member.TeamID)
		if err != nil {
			return governance.EffectiveSettings{}, fmt.Errorf("failed to load team policy: %w", err)
		}
	}

	return governance.Resolve(userSettings, teamPolicy, e.defaults), nil
}

// EffectiveSettingsFor exposes the resolved profile (settings screens
// show users what actually applies to them, not just their preferences)
func (e *Engine) EffectiveSettingsFor(ctx context.Context, userID string) (governance.EffectiveSettings, error) {
	return e.resolveFor(ctx, userID)
}

// Propose evaluates an agent-proposed action. Rejections come back as
// typed errors; auto-approved actions execute immediately; everything
// else becomes a pending action awaiting the user's decision.
func (e *Engine) Propose(ctx context.Context, userID string, req ProposeRequest) (*ProposeResult, error) {
	if !governance.RolloutEnabled(rolloutFeature, userID, e.rolloutPercent) {
		metrics.RecordProposal(string(governance.OutcomeRejected), "rollout")
		e.audit(ctx, userID, "agent.action.rejected", req.ActionType, nil, map[string]interface{}{
			"reason": "rollout",
		})
		return nil, ErrPolicyDisabled
	}

	eff, err := e.resolveFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := governance.Decide(eff, req.ActionType, req.ConfidenceScore)
	metrics.RecordProposal(string(decision.Outcome), string(decision.Reason))

	switch decision.Outcome {
	case governance.OutcomeRejected:
		e.audit(ctx, userID, "agent.action.rejected", req.ActionType, nil, map[string]interface{}{
			"reason": string(decision.Reason),
		})
		if decision.Reason == governance.ReasonPolicyDisabled {
			return nil, ErrPolicyDisabled
		}
		return nil, ErrPermissionDenied

	case governance.OutcomeAutoApproved:
		// No pending action is created: execute now, leave only the
		// audit trail.
		result, execErr := e.executor.Execute(ctx, req.ActionType, req.Payload)
		e.audit(ctx, userID, "agent.action.auto_approved", req.ActionType, nil, map[string]interface{}{
			"confidence": req.ConfidenceScore,
			"result":     result,
		})
		metrics.RecordExecution(string(governance.ChannelFor(req.ActionType)), execErr == nil)
		if execErr != nil {
			return nil, execErr
		}
		return &ProposeResult{
			AutoApproved:    true,
			Reason:          decision.Reason,
			ExecutionResult: result,
		}, nil
	}

	// Pending: persist and notify.
	tier := governance.Classify(req.ActionType)
	now := e.now()
	action := &db.PendingAction{
		UserID:          userID,
		SessionID:       req.SessionID,
		ActionType:      req.ActionType,
		Payload:         req.Payload,
		RiskTier:        tier,
		ConfidenceScore: req.ConfidenceScore,
		Status:          db.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(governance.ExpiryWindow(tier)),
	}
	if err := e.queries.CreatePendingAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to create pending action: %w", err)
	}

	e.hub.Publish(events.Event{Type: events.EventActionCreated, Action: action})
	e.audit(ctx, userID, "agent.action.proposed", req.ActionType, &action.ID, map[string]interface{}{
		"risk_tier":  string(tier),
		"confidence": req.ConfidenceScore,
		"reason":     string(decision.Reason),
	})

	return &ProposeResult{
		AutoApproved:    false,
		PendingActionID: action.ID,
		Reason:          decision.Reason,
		ExpiresAt:       &action.ExpiresAt,
	}, nil
}

// Confirm transitions a pending action to confirmed and executes it. The
// transition commits before execution begins, so a crash mid-execution
// leaves an audit trail instead of a silently lost request.
func (e *Engine) Confirm(ctx context.Context, userID, actionID string) (*db.PendingAction, error) {
	now := e.now()

	ok, err := e.queries.ConfirmPending(ctx, actionID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm action: %w", err)
	}
	if !ok {
		return nil, e.classifyTransitionFailure(ctx, actionID, userID, now)
	}

	action, err := e.queries.GetPendingActionOwned(ctx, actionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload confirmed action: %w", err)
	}

	e.hub.Publish(events.Event{Type: events.EventActionUpdated, Action: action})
	e.recordDecisionFeedback(ctx, action, "confirmation", nil)
	e.audit(ctx, userID, "agent.action.confirmed", action.ActionType, &action.ID, nil)

	// Execution happens after the confirmed transition is durable.
	result, execErr := e.executor.Execute(ctx, action.ActionType, action.Payload)
	status := db.StatusExecuted
	if execErr != nil {
		status = db.StatusFailed
	}
	if err := e.queries.RecordExecutionResult(ctx, action.ID, status, result); err != nil {
		e.logger.Error("Failed to record execution result", err, map[string]interface{}{
			"action_id": action.ID,
		})
	}
	action.Status = status
	action.ExecutionResult = result

	e.hub.Publish(events.Event{Type: events.EventActionUpdated, Action: action})
	metrics.RecordExecution(string(governance.ChannelFor(action.ActionType)), execErr == nil)

	if execErr != nil {
		e.audit(ctx, userID, "agent.action.failed", action.ActionType, &action.ID, map[string]interface{}{
			"result": result,
		})
		// No automatic retry: most target operations are not idempotent.
		return action, execErr
	}

	e.audit(ctx, userID, "agent.action.executed", action.ActionType, &action.ID, map[string]interface{}{
		"result": result,
	})
	return action, nil
}

// Cancel transitions a pending action to cancelled, categorizing the
// free-text reason into the fixed rejection taxonomy
func (e *Engine) Cancel(ctx context.Context, userID, actionID, reason string) (*db.PendingAction, error) {
	now := e.now()
	category := governance.CategorizeRejection(reason)

	ok, err := e.queries.CancelPending(ctx, actionID, userID, string(category), now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel action: %w", err)
	}
	if !ok {
		return nil, e.classifyTransitionFailure(ctx, actionID, userID, now)
	}

	action, err := e.queries.GetPendingActionOwned(ctx, actionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload cancelled action: %w", err)
	}

	e.hub.Publish(events.Event{Type: events.EventActionUpdated, Action: action})
	reasonStr := string(category)
	e.recordDecisionFeedback(ctx, action, "rejection", &reasonStr)
	e.audit(ctx, userID, "agent.action.cancelled", action.ActionType, &action.ID, map[string]interface{}{
		"rejection_reason": reasonStr,
	})

	return action, nil
}

// ListPending returns the caller's actions still awaiting a decision
func (e *Engine) ListPending(ctx context.Context, userID string) ([]db.PendingAction, error) {
	return e.queries.ListPendingActions(ctx, userID)
}

// classifyTransitionFailure turns a failed conditional update into the
// right typed error. Ownership is checked first: a row owned by someone
// else looks exactly like a missing row.
func (e *Engine) classifyTransitionFailure(ctx context.Context, actionID, userID string, now time.Time) error {
	action, err := e.queries.GetPendingActionOwned(ctx, actionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to inspect action: %w", err)
	}

	switch action.Status {
	case db.StatusPending:
		// Still pending but the conditional update matched nothing: the
		// window must have closed. Flip it and report the timeout.
		if _, err := e.queries.ExpireIfTimedOut(ctx, actionID, now); err != nil {
			e.logger.Error("Failed to expire timed-out action", err, map[string]interface{}{
				"action_id": actionID,
			})
		} else {
			action.Status = db.StatusExpired
			e.hub.Publish(events.Event{Type: events.EventActionUpdated, Action: action})
		}
		return ErrExpired
	case db.StatusExpired:
		return ErrExpired
	default:
		return ErrAlreadyProcessed
	}
}

// recordDecisionFeedback appends the feedback row for a confirm/cancel.
// Time-to-decision is measured now, at decision time, never recomputed.
func (e *Engine) recordDecisionFeedback(ctx context.Context, action *db.PendingAction, decisionType string, rejectionReason *string) {
	elapsed := e.now().Sub(action.CreatedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	record := &db.FeedbackRecord{
		UserID:           action.UserID,
		ActionID:         action.ID,
		DecisionType:     decisionType,
		RejectionReason:  rejectionReason,
		TimeToDecisionMS: elapsed,
	}
	if err := e.queries.CreateFeedback(ctx, record); err != nil {
		e.logger.Error("Failed to record feedback", err, map[string]interface{}{
			"action_id": action.ID,
		})
	}
}

// audit appends an audit entry. Details are redacted before they are
// written; audit failures are logged, never allowed to break the
// operation they describe.
func (e *Engine) audit(ctx context.Context, userID, auditAction, resourceType string, resourceID *string, details map[string]interface{}) {
	if details != nil {
		details = validation.RedactMap(details)
	}
	entry := &db.AuditLog{
		UserID:       userID,
		Action:       auditAction,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	if err := e.queries.CreateAuditLog(ctx, entry); err != nil {
		e.logger.Error("Failed to write audit log", err, map[string]interface{}{
			"action": auditAction,
		})
	}
}
