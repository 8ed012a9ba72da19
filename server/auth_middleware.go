package server

import (
	"context"
	"net/http"
	"strings"
)

// RequireAuth validates a Bearer access token through the session façade
// and injects the verified payload into the request context. Every module
// behind this middleware authorizes off the payload's subject and role.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			payload, err := s.sessions.VerifyAccess(r.Context(), raw)
			if err != nil {
				s.writeTaxonomyError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), payloadContextKey{}, payload)
			next(w, r.WithContext(ctx))
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
