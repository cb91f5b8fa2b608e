package auth

import (
	"net/http"
	"strings"
)

// JWTMiddleware provides JWT authentication middleware
func JWTMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for OPTIONS requests (CORS preflight)
			if r.Method == "OPTIONS" {
				next.ServeHTTP(w, r)
				return
			}

			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// Already authenticated by an earlier middleware (agent API key)
			if _, ok := GetUserIDFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			// Browser WebSockets can't set custom headers. For websocket endpoints only, allow token via query param (?token=...).
			if authHeader == "" {
				if strings.HasSuffix(r.URL.Path, "/ws") {
					if token := r.URL.Query().Get("token"); token != "" {
						authHeader = "Bearer " + token
					}
				}
			}
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			tokenString, err := ExtractToken(authHeader)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			claims, err := ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := SetUserID(r.Context(), claims.UserID)
			ctx = SetUsername(ctx, claims.Username)
			ctx = SetIsAdmin(ctx, claims.IsAdmin)
			ctx = SetClaims(ctx, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isPublicPath(path string) bool {
	publicPaths := []string{
		"/health",
		"/api/v1/health",
		"/api/v1/auth/register",
		"/api/v1/auth/login",
		"/metrics",
	}
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
