package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/aspira-app/aspira/api/internal/auth"
	"github.com/aspira-app/aspira/api/internal/db"
)

// AuthHandlers handles authentication requests
type AuthHandlers struct {
	queries *db.Queries
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(queries *db.Queries) *AuthHandlers {
	return &AuthHandlers{queries: queries}
}

// RegisterRequest is the request to register a new user
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the request to login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the response for auth operations
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Register registers a new user. New users start with no saved
// settings, so every agent capability is off until they opt in.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if req.Username == "" || req.Password == "" {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("username and password are required"), nil)
		return
	}

	if len(req.Password) < 6 {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("password must be at least 6 characters"), nil)
		return
	}

	_, err := h.queries.GetUserByUsername(r.Context(), req.Username)
	if err == nil {
		WriteError(w, r, http.StatusConflict, fmt.Errorf("username already exists"), nil)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to hash password"), nil)
		return
	}

	user := &db.User{
		Username:     req.Username,
		PasswordHash: string(passwordHash),
	}

	if err := h.queries.CreateUser(r.Context(), user); err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to create user"), nil)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to generate token"), nil)
		return
	}

	WriteSuccess(w, AuthResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}, http.StatusOK)
}

// Login logs in a user
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"), nil)
		return
	}

	if req.Username == "" || req.Password == "" {
		WriteError(w, r, http.StatusBadRequest, fmt.Errorf("username and password are required"), nil)
		return
	}

	user, err := h.queries.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid username or password"), nil)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid username or password"), nil)
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to generate token"), nil)
		return
	}

	WriteSuccess(w, AuthResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}, http.StatusOK)
}

// GetCurrentUser returns the current authenticated user
func (h *AuthHandlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"), nil)
		return
	}

	user, err := h.queries.GetUserByID(r.Context(), userID)
	if err != nil {
		WriteError(w, r, http.StatusNotFound, fmt.Errorf("user not found"), nil)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin,
	}, http.StatusOK)
}
