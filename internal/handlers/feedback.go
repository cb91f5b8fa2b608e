package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/validation"
)

// FeedbackHandlers handles decision-feedback endpoints
type FeedbackHandlers struct {
	queries *db.Queries
}

// NewFeedbackHandlers creates new feedback handlers
func NewFeedbackHandlers(queries *db.Queries) *FeedbackHandlers {
	return &FeedbackHandlers{queries: queries}
}

// SubmitFeedbackRequest is an optional rating/comment a user attaches to
// a decided action, on top of the automatic decision record
type SubmitFeedbackRequest struct {
	ActionID string  `json:"action_id"`
	Rating   *int    `json:"rating,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

// SubmitFeedback records a user's rating of a decided action
func (h *FeedbackHandlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	var req SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if err := validation.ValidateUUID(req.ActionID, "action_id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}
	if req.Rating != nil {
		if err := validation.ValidateRating(*req.Rating); err != nil {
			WriteError(w, r, http.StatusBadRequest, err, nil)
			return
		}
	}
	if req.Comment != nil {
		if err := validation.ValidateComment(*req.Comment, "comment"); err != nil {
			WriteError(w, r, http.StatusBadRequest, err, nil)
			return
		}
	}

	// Ownership check doubles as existence check
	action, err := h.queries.GetPendingActionOwned(r.Context(), req.ActionID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("action not found"), nil)
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if action.Status == db.StatusPending {
		WriteError(w, r, http.StatusConflict, fmt.Errorf("action has not been decided yet"), nil)
		return
	}

	record := &db.FeedbackRecord{
		UserID:       userID,
		ActionID:     action.ID,
		DecisionType: "rating",
		Rating:       req.Rating,
		Comment:      req.Comment,
	}
	if err := h.queries.CreateFeedback(r.Context(), record); err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to record feedback"), nil)
		return
	}

	WriteSuccess(w, record, http.StatusCreated)
}

// GetFeedbackSummary returns aggregate decision statistics for the
// caller: confirm/reject counts, decision latency, rejection breakdown
func (h *FeedbackHandlers) GetFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	summary, err := h.queries.GetFeedbackSummary(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	WriteSuccess(w, summary, http.StatusOK)
}
