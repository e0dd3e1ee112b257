package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
)

// JWTAuthMiddleware resolves the bearer token into an auth.Principal.
func JWTAuthMiddleware(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondUnauthorized(w, "Missing authorization header")
				return
			}

			tokenString, err := auth.ExtractTokenFromBearer(authHeader)
			if err != nil {
				respondUnauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtManager.ValidateToken(tokenString)
			if err != nil {
				respondUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), auth.NewPrincipal(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits principals holding any of roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			if p == nil {
				respondUnauthorized(w, "Not authenticated")
				return
			}

			if !p.Has(roles...) {
				respondForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits admin and super_admin.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin, auth.RoleSuperAdmin)(next)
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	respondMessage(w, http.StatusUnauthorized, message)
}

func respondForbidden(w http.ResponseWriter, message string) {
	respondMessage(w, http.StatusForbidden, message)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
