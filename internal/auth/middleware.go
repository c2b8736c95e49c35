package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// DefaultHeader is the request header read when none is configured.
const DefaultHeader = "X-API-Key"

// APIKey returns HTTP middleware that enforces API key authentication.
//
// Behaviour:
//   - If key == "", all requests are allowed (pass-through).
//   - Otherwise the value of header must equal key; header defaults to
//     DefaultHeader when empty.
//   - A missing or incorrect key is answered with 401 and a JSON error body.
func APIKey(header, key string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
