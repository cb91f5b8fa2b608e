package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/engine"
	"github.com/aspira-app/aspira/api/internal/validation"
)

// ActionHandlers handles the pending-action lifecycle endpoints
type ActionHandlers struct {
	engine  *engine.Engine
	queries *db.Queries
}

// NewActionHandlers creates new action handlers
func NewActionHandlers(eng *engine.Engine, queries *db.Queries) *ActionHandlers {
	return &ActionHandlers{engine: eng, queries: queries}
}

// ProposeAction evaluates an agent proposal for the authenticated user
func (h *ActionHandlers) ProposeAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	var req engine.ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if errs := validation.ValidateActionProposal(req.ActionType, req.ConfidenceScore, req.Payload); len(errs) > 0 {
		WriteValidationErrors(w, r, errs)
		return
	}

	result, err := h.engine.Propose(r.Context(), userID, req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.AutoApproved {
		status = http.StatusAccepted
	}
	WriteSuccess(w, result, status)
}

// ListActions lists the caller's pending actions
func (h *ActionHandlers) ListActions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	actions, err := h.engine.ListPending(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if actions == nil {
		actions = []db.PendingAction{}
	}

	WriteSuccess(w, actions, http.StatusOK)
}

// GetAction returns one of the caller's actions in any state. Actions
// owned by someone else are indistinguishable from missing ones.
func (h *ActionHandlers) GetAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	actionID := mux.Vars(r)["id"]
	if err := validation.ValidateUUID(actionID, "id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	action, err := h.queries.GetPendingActionOwned(r.Context(), actionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("action not found"), nil)
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	WriteSuccess(w, action, http.StatusOK)
}

// ConfirmAction confirms a pending action and executes it
func (h *ActionHandlers) ConfirmAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	actionID := mux.Vars(r)["id"]
	if err := validation.ValidateUUID(actionID, "id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	action, err := h.engine.Confirm(r.Context(), userID, actionID)
	if err != nil && action == nil {
		writeEngineError(w, r, err)
		return
	}
	if err != nil {
		// Confirmed but execution failed: the action is terminal failed,
		// report it with the row state so the client can show both.
		WriteSuccess(w, map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		}, http.StatusBadGateway)
		return
	}

	WriteSuccess(w, action, http.StatusOK)
}

// CancelRequest carries the optional free-text cancellation reason
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelAction cancels a pending action
func (h *ActionHandlers) CancelAction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	actionID := mux.Vars(r)["id"]
	if err := validation.ValidateUUID(actionID, "id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	var req CancelRequest
	if r.Body != nil {
		// Body is optional; a bare cancel is an unspecified rejection
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := validation.ValidateComment(req.Reason, "reason"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	action, err := h.engine.Cancel(r.Context(), userID, actionID, req.Reason)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	WriteSuccess(w, action, http.StatusOK)
}

// writeEngineError maps engine sentinel errors onto HTTP statuses
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("action not found"), nil)
	case errors.Is(err, engine.ErrExpired):
		WriteError(w, r, http.StatusGone, fmt.Errorf("action has expired"), nil)
	case errors.Is(err, engine.ErrAlreadyProcessed):
		WriteError(w, r, http.StatusConflict, fmt.Errorf("action already processed"), nil)
	case errors.Is(err, engine.ErrPolicyDisabled):
		WriteError(w, r, http.StatusForbidden, fmt.Errorf("agent actions are disabled"), nil)
	case errors.Is(err, engine.ErrPermissionDenied):
		WriteError(w, r, http.StatusForbidden, fmt.Errorf("channel not permitted"), nil)
	case errors.Is(err, engine.ErrExecutionFailed):
		WriteError(w, r, http.StatusBadGateway, err, nil)
	default:
		WriteError(w, r, http.StatusInternalServerError, err, nil)
	}
}
