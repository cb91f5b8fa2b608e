package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aspira-app/aspira/api/internal/auth"
	oidcauth "github.com/aspira-app/aspira/api/internal/auth/oidc"
	"github.com/aspira-app/aspira/api/internal/db"
)

const loginAttemptTTL = 10 * time.Minute

// OIDCHandlers handles the browser login flow against an OIDC provider.
// On a successful callback the user is provisioned locally and issued an
// application JWT, so the rest of the API works the same in both auth modes.
type OIDCHandlers struct {
	provider *oidcauth.Provider
	attempts *oidcauth.AttemptStore
	queries  *db.Queries
}

// NewOIDCHandlers creates OIDC flow handlers
func NewOIDCHandlers(provider *oidcauth.Provider, queries *db.Queries) *OIDCHandlers {
	return &OIDCHandlers{
		provider: provider,
		attempts: oidcauth.NewAttemptStore(),
		queries:  queries,
	}
}

// StartOIDCFlow begins the authorization code flow with PKCE
func (h *OIDCHandlers) StartOIDCFlow(w http.ResponseWriter, r *http.Request) {
	attempt, err := oidcauth.NewLoginAttempt(loginAttemptTTL)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to start login"), nil)
		return
	}

	authURL, err := h.provider.AuthCodeURL(attempt.State, attempt.Nonce, attempt.CodeVerifier)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to build authorization URL"), nil)
		return
	}

	h.attempts.Put(attempt)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// OIDCCallback completes the flow: validates state, exchanges the code,
// verifies the ID token, provisions the user, and returns an app token
func (h *OIDCHandlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("authorization failed: %s", errParam), nil)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("missing state or code"), nil)
		return
	}

	attempt, ok := h.attempts.Take(state)
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unknown or expired login attempt"), nil)
		return
	}

	token, err := h.provider.ExchangeCode(r.Context(), code, attempt.CodeVerifier)
	if err != nil {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("code exchange failed"), nil)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("provider response missing id_token"), nil)
		return
	}

	_, rawClaims, err := h.provider.VerifyIDToken(r.Context(), rawIDToken)
	if err != nil {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid ID token"), nil)
		return
	}
	if nonce, ok := rawClaims["nonce"].(string); !ok || nonce != attempt.Nonce {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("nonce mismatch"), nil)
		return
	}

	claims := oidcauth.ExtractClaims(rawClaims)
	if claims.Subject == "" {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("token has no subject"), nil)
		return
	}

	user, err := auth.ProvisionOIDCUser(r.Context(), h.queries, claims)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to resolve user"), nil)
		return
	}

	appToken, err := auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to issue token"), nil)
		return
	}

	LogAuditEvent(r.Context(), h.queries, user.ID, "oidc_login", "user", &user.ID, nil, r)

	WriteSuccess(w, map[string]interface{}{
		"token": appToken,
		"user": map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"is_admin": user.IsAdmin,
		},
	}, http.StatusOK)
}
