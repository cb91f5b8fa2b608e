package auth

import (
	"net/http"
)

// APIKeyMiddleware authenticates agent callers by the X-API-Key header.
// Requests without the header pass through untouched so the token
// middleware behind it can authenticate interactive clients.
func APIKeyMiddleware(keyManager *APIKeyManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey, err := keyManager.ValidateAPIKey(r.Context(), key)
			if err != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			ctx := SetAPIKey(r.Context(), apiKey)
			ctx = SetUserID(ctx, apiKey.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
