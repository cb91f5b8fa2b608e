package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/engine"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/validation"
)

// SettingsHandlers handles user agent-settings endpoints
type SettingsHandlers struct {
	engine  *engine.Engine
	queries *db.Queries
}

// NewSettingsHandlers creates new settings handlers
func NewSettingsHandlers(eng *engine.Engine, queries *db.Queries) *SettingsHandlers {
	return &SettingsHandlers{engine: eng, queries: queries}
}

// GetSettings returns the caller's saved preferences. Users who never
// saved anything get an empty object, not the resolved defaults.
func (h *SettingsHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	settings, err := h.queries.GetUserSettings(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}
	if settings == nil {
		settings = &governance.UserSettings{}
	}

	WriteSuccess(w, settings, http.StatusOK)
}

// UpdateSettings replaces the caller's saved preferences
func (h *SettingsHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	var settings governance.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if settings.ConfidenceThreshold != nil {
		if err := validation.ValidateConfidenceThreshold(*settings.ConfidenceThreshold); err != nil {
			WriteError(w, r, http.StatusBadRequest, err, nil)
			return
		}
	}

	if err := h.queries.UpsertUserSettings(r.Context(), userID, &settings); err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	WriteSuccess(w, settings, http.StatusOK)
}

// GetEffectiveSettings returns the merged profile that actually governs
// the caller's agent, so the UI can show why an action will be held.
func (h *SettingsHandlers) GetEffectiveSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	eff, err := h.engine.EffectiveSettingsFor(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	WriteSuccess(w, eff, http.StatusOK)
}
