package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/aspira-app/aspira/api/internal/db"
)

// APIKeyManager manages agent-caller API keys. Keys let the agent
// service propose actions on a user's behalf without holding that
// user's session token.
type APIKeyManager struct {
	queries *db.Queries
}

// NewAPIKeyManager creates a new API key manager
func NewAPIKeyManager(queries *db.Queries) *APIKeyManager {
	return &APIKeyManager{queries: queries}
}

// GenerateAPIKey generates and stores a new API key bound to a user.
// The plaintext key is returned once and never stored.
func (m *APIKeyManager) GenerateAPIKey(ctx context.Context, userID, name string) (string, *db.APIKey, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}

	key := base64.URLEncoding.EncodeToString(keyBytes)
	keyPrefix := GetKeyPrefix(key)
	keyHash, err := HashAPIKey(key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash key: %w", err)
	}

	apiKey := &db.APIKey{
		ID:        uuid.New().String(),
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		UserID:    userID,
		Name:      name,
	}

	if err := m.queries.CreateAPIKey(ctx, apiKey); err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return key, apiKey, nil
}

// ValidateAPIKey validates an API key and returns the key record
func (m *APIKeyManager) ValidateAPIKey(ctx context.Context, key string) (*db.APIKey, error) {
	prefix := GetKeyPrefix(key)

	apiKey, err := m.queries.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("API key not found")
	}

	if !VerifyAPIKey(key, apiKey.KeyHash) {
		return nil, fmt.Errorf("invalid API key")
	}

	_ = m.queries.UpdateAPIKeyLastUsed(ctx, apiKey.ID)

	return apiKey, nil
}

// DeleteAPIKey deletes one of a user's API keys
func (m *APIKeyManager) DeleteAPIKey(ctx context.Context, id, userID string) error {
	return m.queries.DeleteAPIKey(ctx, id, userID)
}

// GetKeyPrefix extracts the prefix from an API key
func GetKeyPrefix(key string) string {
	if len(key) < 8 {
		return key
	}
	return key[:8]
}

// HashAPIKey hashes an API key using bcrypt
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey verifies an API key against its hash
func VerifyAPIKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}
