package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/blogapi/internal/auth"
)

func (a *App) HandleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API is working!"})
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	id, err := a.Auth.Register(r.Context(), in.Username, in.Email, in.Password)
	if err != nil {
		a.Metrics.AuthEvents.WithLabelValues("register", "error").Inc()
		a.writeAuthError(w, r, err)
		return
	}

	a.Metrics.AuthEvents.WithLabelValues("register", "ok").Inc()
	a.Log.InfoContext(r.Context(), "user registered", "user_id", id)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"userId":  id,
	})
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	token, id, err := a.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		a.Metrics.AuthEvents.WithLabelValues("login", "error").Inc()
		a.writeAuthError(w, r, err)
		return
	}

	a.Metrics.AuthEvents.WithLabelValues("login", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   token,
		"user":    id,
	})
}

// writeAuthError maps auth.Service outcomes to responses. Unknown email and
// wrong password share one body.
func (a *App) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *auth.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", ve.Message)
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, "USER_EXISTS", "Username or email already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	default:
		a.Log.ErrorContext(r.Context(), "auth request failed", "error", err)
		writeServerError(w)
	}
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.Ping(ctx); err != nil {
		a.Log.WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
