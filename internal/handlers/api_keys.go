package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/validation"
)

// APIKeyHandlers handles agent API key management endpoints
type APIKeyHandlers struct {
	keyManager *auth.APIKeyManager
	queries    *db.Queries
}

// NewAPIKeyHandlers creates new API key handlers
func NewAPIKeyHandlers(keyManager *auth.APIKeyManager, queries *db.Queries) *APIKeyHandlers {
	return &APIKeyHandlers{
		keyManager: keyManager,
		queries:    queries,
	}
}

// GenerateAPIKey creates an agent key bound to the caller
func (h *APIKeyHandlers) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	var req struct {
		Name string `json:"name,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Name == "" {
		req.Name = "agent"
	}

	key, apiKey, err := h.keyManager.GenerateAPIKey(r.Context(), userID, req.Name)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	LogAuditEvent(r.Context(), h.queries, userID, "api_key.created", "api_key", &apiKey.ID, nil, r)

	// The full key is only ever shown once
	WriteSuccess(w, map[string]interface{}{
		"id":         apiKey.ID,
		"key":        key,
		"key_prefix": apiKey.KeyPrefix,
		"name":       apiKey.Name,
		"created_at": apiKey.CreatedAt,
	}, http.StatusCreated)
}

// ListAPIKeys lists the caller's keys, prefixes only
func (h *APIKeyHandlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	keys, err := h.queries.ListAPIKeys(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	response := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		response = append(response, map[string]interface{}{
			"id":           key.ID,
			"key_prefix":   key.KeyPrefix,
			"name":         key.Name,
			"created_at":   key.CreatedAt,
			"last_used_at": key.LastUsedAt,
		})
	}

	WriteSuccess(w, response, http.StatusOK)
}

// DeleteAPIKey revokes one of the caller's keys
func (h *APIKeyHandlers) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	keyID := mux.Vars(r)["id"]
	if err := validation.ValidateUUID(keyID, "id"); err != nil {
		WriteError(w, r, http.StatusBadRequest, err, nil)
		return
	}

	if err := h.keyManager.DeleteAPIKey(r.Context(), keyID, userID); err != nil {
		WriteError(w, r, http.StatusInternalServerError, err, nil)
		return
	}

	LogAuditEvent(r.Context(), h.queries, userID, "api_key.deleted", "api_key", &keyID, nil, r)

	w.WriteHeader(http.StatusNoContent)
}
