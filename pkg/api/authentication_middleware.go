package api

import (
	"crypto/subtle"
	"net/http"
)

const integrationSecretHeader = "X-Integration-Secret"

// integrationSecretMiddleware rejects requests whose X-Integration-Secret does
// not match secret. An empty secret rejects every request.
func integrationSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusForbidden, ErrIntegrationDisabled)
				return
			}

			provided := r.Header.Get(integrationSecretHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, ErrInvalidSecret)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
