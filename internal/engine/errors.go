package engine

import "errors"

/* Typed errors for the governance engine. Handlers map these onto HTTP
   statuses; nothing else should inspect error text. */
var (
	// ErrNotFound covers both "no such action" and "not owned by the
	// caller". The two cases are deliberately indistinguishable so
	// action ids cannot be enumerated across users.
	ErrNotFound = errors.New("action not found")

	// ErrExpired means the confirmation window has closed.
	ErrExpired = errors.New("action expired")

	// ErrAlreadyProcessed means the action already left the pending
	// state (confirmed, cancelled, executed, or failed).
	ErrAlreadyProcessed = errors.New("action already processed")

	// ErrPolicyDisabled means agent actions are switched off for this
	// user or their team.
	ErrPolicyDisabled = errors.New("agent actions are disabled by policy")

	// ErrPermissionDenied means the action's channel is not permitted.
	ErrPermissionDenied = errors.New("channel not permitted by policy")

	// ErrExecutionFailed wraps a provider failure. The action is left in
	// the failed state and is never retried automatically.
	ErrExecutionFailed = errors.New("action execution failed")
)
