// Package api implements the fennec REST API using chi.
package api

import (
	"net/http"

	"github.com/starford/fennec/internal/auth"
)

// IdentityMiddleware verifies the bearer token with v and stores the
// resulting identity in the request context. Requests that fail
// verification get 401.
func IdentityMiddleware(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, _ := auth.BearerToken(r.Header.Get("Authorization"))
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="fennec"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
