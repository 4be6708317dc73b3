package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireAdminSecret validates the X-Admin-Auth header for operator
// endpoints. An empty configured secret disables the endpoints rather
// than opening them.
func RequireAdminSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Admin-Auth")
			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				http.Error(w, `{"error":{"code":"E_FORBIDDEN","message":"invalid admin secret"}}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
