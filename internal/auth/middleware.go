package auth

import (
	"encoding/json"
	"net/http"
)

const (
	apiKeyHeader     = "X-API-Key"
	apiKeyQueryParam = "api-key"
)

// Middleware returns an http.Handler middleware that enforces authentication.
// In open mode (no keys configured), all requests pass through. Otherwise
// the key comes from the X-API-Key header or the api-key query param; safe
// methods need any valid key and everything else needs the control role.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			key = r.URL.Query().Get(apiKeyQueryParam)
		}
		role := s.Role(key)
		switch {
		case role == "":
			deny(w, http.StatusUnauthorized, "missing or unknown API key")
		case role != RoleControl && !safeMethod(r.Method):
			deny(w, http.StatusForbidden, "key is read-only")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status), "message": msg})
}
