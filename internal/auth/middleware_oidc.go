package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	oidcauth "github.com/aspira-app/aspira/api/internal/auth/oidc"
	"github.com/aspira-app/aspira/api/internal/db"
)

// OIDCMiddleware authenticates requests with a bearer ID token issued by
// the configured OIDC provider. Users are provisioned on first login,
// keyed by the token subject.
func OIDCMiddleware(provider *oidcauth.Provider, queries *db.Queries) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "OPTIONS" {
				next.ServeHTTP(w, r)
				return
			}

			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := GetUserIDFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
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

			rawToken, err := ExtractToken(authHeader)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			_, rawClaims, err := provider.VerifyIDToken(r.Context(), rawToken)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			claims := oidcauth.ExtractClaims(rawClaims)
			if claims.Subject == "" {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			user, err := ProvisionOIDCUser(r.Context(), queries, claims)
			if err != nil {
				http.Error(w, "Failed to resolve user", http.StatusInternalServerError)
				return
			}

			ctx := SetUserID(r.Context(), user.ID)
			ctx = SetUsername(ctx, user.Username)
			ctx = SetIsAdmin(ctx, user.IsAdmin)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProvisionOIDCUser looks up the local user for an OIDC subject, creating
// one on first login. The subject is stored as the username so renames
// at the identity provider don't change local identity.
func ProvisionOIDCUser(ctx context.Context, queries *db.Queries, claims *oidcauth.Claims) (*db.User, error) {
	user, err := queries.GetUserByUsername(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	user = &db.User{
		Username:     claims.Subject,
		PasswordHash: "",
		IsAdmin:      false,
	}
	if err := queries.CreateUser(ctx, user); err != nil {
		// Lost a provisioning race; re-read the winner's row
		if existing, lookupErr := queries.GetUserByUsername(ctx, claims.Subject); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}
