package main

import (
	"net/http"
	"strings"

	"github.com/example/blogapi/internal/auth"
)

// bearerToken extracts the credential from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects requests without a bearer token with 401 and requests
// whose token fails verification with 403. Otherwise the verified identity
// is attached to the request context.
func (a *App) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			a.Metrics.AuthEvents.WithLabelValues("gate", "missing").Inc()
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Access denied")
			return
		}

		id, err := a.Tokens.Verify(token)
		if err != nil {
			reason := auth.RejectionReason(err)
			a.Metrics.AuthEvents.WithLabelValues("gate", reason).Inc()
			a.Log.InfoContext(r.Context(), "token rejected", "reason", reason)
			writeError(w, http.StatusForbidden, "INVALID_TOKEN", "Invalid token")
			return
		}

		a.Metrics.AuthEvents.WithLabelValues("gate", "ok").Inc()
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	}
}
