package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/gorilla/mux"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/engine"
	"github.com/aspira-app/aspira/api/internal/events"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/logging"
	"github.com/aspira-app/aspira/api/internal/middleware"
	"github.com/aspira-app/aspira/api/internal/providers"
)

/* stubProvider stands in for external gateways in the test server */
type stubProvider struct{}

func (stubProvider) Send(ctx context.Context, payload map[string]interface{}) (*providers.Receipt, error) {
	return &providers.Receipt{Success: true, ProviderMessageID: "stub"}, nil
}

/* SetupTestServer creates a test HTTP server with all routes configured */
/* This is in the handlers package to avoid import cycles */
func SetupTestServer(queries *db.Queries) *httptest.Server {
	/* Set JWT secret for testing */
	os.Setenv("JWT_SECRET", "test-secret-key-for-testing-only")

	logger := logging.NewLogger("error", "text", "stdout")

	registry := providers.NewRegistry()
	for _, channel := range governance.Channels {
		registry.Register(channel, stubProvider{})
	}

	hub := events.NewHub()
	executor := engine.NewExecutor(registry)
	eng := engine.NewEngine(queries, executor, hub, logger, governance.DefaultSystemDefaults())

	router := mux.NewRouter()

	/* Apply middleware */
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(logger))

	/* Health check (no auth) */
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
		})
	}).Methods("GET")

	/* Auth routes */
	authHandlers := NewAuthHandlers(queries)
	authRouter := router.PathPrefix("/api/v1/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandlers.Register).Methods("POST")
	authRouter.HandleFunc("/login", authHandlers.Login).Methods("POST")

	/* API routes (with auth) */
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	keyManager := auth.NewAPIKeyManager(queries)
	apiRouter.Use(auth.APIKeyMiddleware(keyManager))
	apiRouter.Use(auth.JWTMiddleware())
	apiRouter.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(10000, 1)))

	apiRouter.HandleFunc("/auth/me", authHandlers.GetCurrentUser).Methods("GET")

	/* Action lifecycle routes */
	actionHandlers := NewActionHandlers(eng, queries)
	apiRouter.HandleFunc("/actions", actionHandlers.ProposeAction).Methods("POST")
	apiRouter.HandleFunc("/actions", actionHandlers.ListActions).Methods("GET")
	wsHandlers := NewWebSocketHandlers(hub, logger)
	apiRouter.HandleFunc("/actions/ws", wsHandlers.ActionsWebSocket).Methods("GET")
	apiRouter.HandleFunc("/actions/{id}", actionHandlers.GetAction).Methods("GET")
	apiRouter.HandleFunc("/actions/{id}/confirm", actionHandlers.ConfirmAction).Methods("POST")
	apiRouter.HandleFunc("/actions/{id}/cancel", actionHandlers.CancelAction).Methods("POST")

	/* Settings routes */
	settingsHandlers := NewSettingsHandlers(eng, queries)
	apiRouter.HandleFunc("/settings", settingsHandlers.GetSettings).Methods("GET")
	apiRouter.HandleFunc("/settings", settingsHandlers.UpdateSettings).Methods("PUT")
	apiRouter.HandleFunc("/settings/effective", settingsHandlers.GetEffectiveSettings).Methods("GET")

	/* Team routes */
	teamHandlers := NewTeamHandlers(queries)
	apiRouter.HandleFunc("/teams", teamHandlers.CreateTeam).Methods("POST")
	apiRouter.HandleFunc("/teams/{id}", teamHandlers.GetTeam).Methods("GET")
	apiRouter.HandleFunc("/teams/{id}/members", teamHandlers.ListMembers).Methods("GET")
	apiRouter.HandleFunc("/teams/{id}/members", teamHandlers.AddMember).Methods("POST")
	apiRouter.HandleFunc("/teams/{id}/policy", teamHandlers.GetTeamPolicy).Methods("GET")
	apiRouter.HandleFunc("/teams/{id}/policy", teamHandlers.UpdateTeamPolicy).Methods("PUT")

	/* Feedback routes */
	feedbackHandlers := NewFeedbackHandlers(queries)
	apiRouter.HandleFunc("/feedback", feedbackHandlers.SubmitFeedback).Methods("POST")
	apiRouter.HandleFunc("/feedback/summary", feedbackHandlers.GetFeedbackSummary).Methods("GET")

	/* API key routes */
	apiKeyHandlers := NewAPIKeyHandlers(keyManager, queries)
	apiRouter.HandleFunc("/api-keys", apiKeyHandlers.GenerateAPIKey).Methods("POST")
	apiRouter.HandleFunc("/api-keys", apiKeyHandlers.ListAPIKeys).Methods("GET")
	apiRouter.HandleFunc("/api-keys/{id}", apiKeyHandlers.DeleteAPIKey).Methods("DELETE")

	/* Audit log routes */
	auditHandlers := NewAuditLogHandlers(queries)
	apiRouter.HandleFunc("/audit-logs", auditHandlers.ListAuditLogs).Methods("GET")

	return httptest.NewServer(router)
}
