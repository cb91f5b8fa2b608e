package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/auth/oidc"
	"github.com/aspira-app/aspira/api/internal/config"
	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/engine"
	"github.com/aspira-app/aspira/api/internal/events"
	"github.com/aspira-app/aspira/api/internal/governance"
	"github.com/aspira-app/aspira/api/internal/handlers"
	"github.com/aspira-app/aspira/api/internal/initialization"
	"github.com/aspira-app/aspira/api/internal/logging"
	"github.com/aspira-app/aspira/api/internal/metrics"
	"github.com/aspira-app/aspira/api/internal/middleware"
	"github.com/aspira-app/aspira/api/internal/providers"
	"github.com/aspira-app/aspira/api/internal/validation"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	logger.Info("Starting Aspira governance API server", nil)

	// Connect to database
	database, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		logger.Error("Failed to open database", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	// Configure connection pool
	database.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	database.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", err, nil)
		os.Exit(1)
	}

	logger.Info("Connected to database", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
		"name": cfg.Database.Name,
	})

	// Initialize components
	queries := db.NewQueries(database)
	keyManager := auth.NewAPIKeyManager(queries)

	// Validate JWT secret if JWT mode is enabled
	if cfg.Auth.Mode == "jwt" && cfg.Auth.JWTSecret == "" {
		logger.Error("JWT_SECRET is required when using JWT authentication", fmt.Errorf("JWT_SECRET environment variable not set"), nil)
		os.Exit(1)
	}

	// Initialize OIDC provider if configured
	var oidcProvider *oidc.Provider
	var oidcHandlers *handlers.OIDCHandlers
	if cfg.Auth.Mode == "oidc" {
		if cfg.Auth.OIDC.IssuerURL == "" {
			logger.Error("OIDC_ISSUER_URL is required when using OIDC authentication", fmt.Errorf("OIDC_ISSUER_URL environment variable not set"), nil)
			os.Exit(1)
		}
		oidcProvider, err = oidc.NewProvider(
			ctx,
			cfg.Auth.OIDC.IssuerURL,
			cfg.Auth.OIDC.ClientID,
			cfg.Auth.OIDC.ClientSecret,
			cfg.Auth.OIDC.RedirectURL,
			cfg.Auth.OIDC.Scopes,
		)
		if err != nil {
			logger.Error("Failed to initialize OIDC provider", err, nil)
			os.Exit(1)
		}
		oidcHandlers = handlers.NewOIDCHandlers(oidcProvider, queries)
		logger.Info("OIDC provider initialized", map[string]interface{}{
			"issuer": cfg.Auth.OIDC.IssuerURL,
		})
	}

	// Bootstrap application (schema, admin user, health check)
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	bootstrap := initialization.NewBootstrap(queries, logger)
	if err := bootstrap.Initialize(initCtx); err != nil {
		logger.Error("Failed to bootstrap application", err, nil)
		os.Exit(1)
	}

	// Load governance defaults (env plus optional policy file) and refuse
	// to start on an unsafe policy
	defaults, err := cfg.Governance.LoadSystemDefaults()
	if err != nil {
		logger.Error("Failed to load governance policy", err, nil)
		os.Exit(1)
	}
	validator := initialization.NewValidator(logger)
	if result := validator.ValidateSystemDefaults(defaults); !result.Valid {
		logger.Error("Governance policy is invalid", fmt.Errorf("%s", strings.Join(result.Errors, "; ")), nil)
		os.Exit(1)
	} else {
		for _, warning := range result.Warnings {
			logger.Info("Governance policy warning", map[string]interface{}{
				"warning": warning,
			})
		}
	}

	// Build the provider registry. Channels with a configured gateway go
	// over HTTP; the rest stay in-process.
	registry := providers.NewRegistry()
	gateways := map[governance.Channel]struct{ endpoint, apiKey string }{
		governance.ChannelEmail: {cfg.Providers.EmailEndpoint, cfg.Providers.EmailAPIKey},
		governance.ChannelSMS:   {cfg.Providers.SMSEndpoint, cfg.Providers.SMSAPIKey},
		governance.ChannelVoice: {cfg.Providers.VoiceEndpoint, cfg.Providers.VoiceAPIKey},
		governance.ChannelTask:  {cfg.Providers.TaskEndpoint, cfg.Providers.TaskAPIKey},
	}
	for _, channel := range governance.Channels {
		gw, ok := gateways[channel]
		if !ok || gw.endpoint == "" {
			registry.Register(channel, providers.LocalProvider{})
			continue
		}
		if err := validation.ValidateURLRequired(gw.endpoint, string(channel)+" provider endpoint"); err != nil {
			logger.Error("Invalid provider endpoint", err, map[string]interface{}{
				"channel": string(channel),
			})
			os.Exit(1)
		}
		registry.Register(channel, providers.NewHTTPProvider(gw.endpoint, gw.apiKey))
		logger.Info("Registered provider gateway", map[string]interface{}{
			"channel": string(channel),
		})
	}

	// Governance engine and supporting plumbing
	hub := events.NewHub()
	executor := engine.NewExecutor(registry)
	eng := engine.NewEngine(queries, executor, hub, logger, defaults)
	eng.SetRolloutPercent(cfg.Governance.RolloutPercent)

	// Expiry sweeper runs until shutdown
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()
	sweeper := engine.NewSweeper(queries, hub, logger, cfg.Governance.SweepInterval)
	go sweeper.Run(sweeperCtx)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(queries)
	actionHandlers := handlers.NewActionHandlers(eng, queries)
	wsHandlers := handlers.NewWebSocketHandlers(hub, logger)
	settingsHandlers := handlers.NewSettingsHandlers(eng, queries)
	teamHandlers := handlers.NewTeamHandlers(queries)
	feedbackHandlers := handlers.NewFeedbackHandlers(queries)
	apiKeyHandlers := handlers.NewAPIKeyHandlers(keyManager, queries)
	auditHandlers := handlers.NewAuditLogHandlers(queries)
	systemMetricsHandlers := handlers.NewSystemMetricsHandlers(logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Governance.RateLimit, cfg.Governance.RateWindow)

	// Setup router
	router := mux.NewRouter()

	// Apply middleware (order matters)
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RequestSizeMiddleware(cfg.Governance.MaxRequestBody))

	// Health check (no auth)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"service":   "aspira-api",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	// Prometheus metrics (no auth)
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Auth routes (no auth required)
	authRouter := router.PathPrefix("/api/v1/auth").Subrouter()
	if cfg.Auth.EnableLocalAuth {
		authRouter.HandleFunc("/register", authHandlers.Register).Methods("POST")
		authRouter.HandleFunc("/login", authHandlers.Login).Methods("POST")
	}
	if oidcHandlers != nil {
		authRouter.HandleFunc("/oidc/start", oidcHandlers.StartOIDCFlow).Methods("GET")
		authRouter.HandleFunc("/oidc/callback", oidcHandlers.OIDCCallback).Methods("GET")
	}

	// API routes (with auth and rate limiting). API key auth runs first
	// and passes through when no key is presented; the bearer middleware
	// then skips requests the key already authenticated.
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(auth.APIKeyMiddleware(keyManager))
	if cfg.Auth.Mode == "oidc" && oidcProvider != nil {
		apiRouter.Use(auth.OIDCMiddleware(oidcProvider, queries))
	} else {
		apiRouter.Use(auth.JWTMiddleware())
	}
	apiRouter.Use(middleware.RateLimitMiddleware(rateLimiter))

	// Current user endpoint
	apiRouter.HandleFunc("/auth/me", authHandlers.GetCurrentUser).Methods("GET")

	// Action lifecycle routes
	apiRouter.HandleFunc("/actions", actionHandlers.ProposeAction).Methods("POST")
	apiRouter.HandleFunc("/actions", actionHandlers.ListActions).Methods("GET")
	apiRouter.HandleFunc("/actions/ws", wsHandlers.ActionsWebSocket).Methods("GET")
	apiRouter.HandleFunc("/actions/{id}", actionHandlers.GetAction).Methods("GET")
	apiRouter.HandleFunc("/actions/{id}/confirm", actionHandlers.ConfirmAction).Methods("POST")
	apiRouter.HandleFunc("/actions/{id}/cancel", actionHandlers.CancelAction).Methods("POST")

	// Settings routes
	apiRouter.HandleFunc("/settings", settingsHandlers.GetSettings).Methods("GET")
	apiRouter.HandleFunc("/settings", settingsHandlers.UpdateSettings).Methods("PUT")
	apiRouter.HandleFunc("/settings/effective", settingsHandlers.GetEffectiveSettings).Methods("GET")

	// Team routes
	apiRouter.HandleFunc("/teams", teamHandlers.CreateTeam).Methods("POST")
	apiRouter.HandleFunc("/teams/{id}", teamHandlers.GetTeam).Methods("GET")
	apiRouter.HandleFunc("/teams/{id}/members", teamHandlers.ListMembers).Methods("GET")
	apiRouter.HandleFunc("/teams/{id}/members", teamHandlers.AddMember).Methods("POST")
	apiRouter.HandleFunc("/teams/{id}/policy", teamHandlers.GetTeamPolicy).Methods("GET")
	apiRouter.HandleFunc("/teams/{id}/policy", teamHandlers.UpdateTeamPolicy).Methods("PUT")

	// Feedback routes
	apiRouter.HandleFunc("/feedback", feedbackHandlers.SubmitFeedback).Methods("POST")
	apiRouter.HandleFunc("/feedback/summary", feedbackHandlers.GetFeedbackSummary).Methods("GET")

	// API key routes
	apiRouter.HandleFunc("/api-keys", apiKeyHandlers.GenerateAPIKey).Methods("POST")
	apiRouter.HandleFunc("/api-keys", apiKeyHandlers.ListAPIKeys).Methods("GET")
	apiRouter.HandleFunc("/api-keys/{id}", apiKeyHandlers.DeleteAPIKey).Methods("DELETE")

	// Audit log routes
	apiRouter.HandleFunc("/audit-logs", auditHandlers.ListAuditLogs).Methods("GET")

	// System metrics (admin only, enforced in the handler)
	apiRouter.HandleFunc("/system-metrics", systemMetricsHandlers.GetSystemMetrics).Methods("GET")

	// CORS handler wrapper
	//
	// Important: we wrap the router at the HTTP handler level (instead of router.Use),
	// so CORS headers and OPTIONS preflight responses work even when gorilla/mux would
	// otherwise return 404 for method-mismatches (e.g. OPTIONS on a GET-only route).
	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades need direct access to the underlying connection
		// (Hijacker interface) so we bypass the CORS wrapper for them
		if r.Header.Get("Upgrade") == "websocket" {
			router.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		allowed := false
		allowAll := false

		for _, allowedOrigin := range cfg.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowAll = true
				allowed = true
				break
			} else if allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			// If "*" is allowed, echo the actual origin (required when
			// credentials are allowed)
			if allowAll && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}

		// Only set credentials for a specific origin, never with a wildcard
		if allowed && (!allowAll || origin != "") {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.CORS.AllowedMethods, ", "))
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.CORS.AllowedHeaders, ", "))

		// Preflight
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		router.ServeHTTP(w, r)
	})

	// Create HTTP server
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"address": addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", err, nil)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server", nil)
	sweeperCancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err, nil)
	}

	logger.Info("Server stopped", nil)
}
