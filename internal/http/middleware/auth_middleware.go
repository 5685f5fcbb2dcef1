package middleware

import (
	"context"
	"net/http"
	"strings"

	"attendance-session-service/internal/http/response"
	"attendance-session-service/internal/security"
	"attendance-session-service/internal/service"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// AuthMiddleware resolves the per-request identity. Token issuance lives in
// the external auth service; this layer only verifies and unpacks.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			raw := strings.TrimSpace(auth[7:])
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

// ActorFromContext adapts verified claims into the identity shape the
// services consume.
func ActorFromContext(ctx context.Context) (service.Actor, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{
		ID:       claims.Subject,
		Role:     claims.Role,
		ClassIDs: claims.ClassIDs,
	}, true
}
