package server

import (
	"crypto/subtle"
	"net/http"
)

// RequireAPIKey guards mutating endpoints with a shared X-API-Key header.
// An empty configured key disables the check (local development).
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				provided := r.Header.Get("X-API-Key")
				if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
					writeError(w, http.StatusUnauthorized, "API key inválida")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
