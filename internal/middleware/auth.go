package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/casescope/hub/internal/model"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// AuthMiddleware requires Authorization: Bearer <token> and injects the
// validated principal into request context.
func AuthMiddleware(validateToken func(token string) (*model.Principal, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":{"code":"E_UNAUTHORIZED","message":"missing token"}}`, http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			pr, err := validateToken(token)
			if err != nil {
				http.Error(w, `{"error":{"code":"E_UNAUTHORIZED","message":"invalid or expired token"}}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxPrincipal, pr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromCtx extracts the authenticated principal from context.
func PrincipalFromCtx(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(ctxPrincipal).(*model.Principal)
	return p
}
