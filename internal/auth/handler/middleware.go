package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authservice "traffic-monitor/backend/internal/auth/service"
	"traffic-monitor/backend/internal/security"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "auth_identity"

// Identity is the authenticated caller, placed in the request context by
// Authenticate.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// Authenticate verifies the access token and confirms the user still has a
// live session, so a sign-out takes effect immediately rather than when the
// access token expires.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or malformed token")
			return
		}
		claims, err := h.service.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, security.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
			} else {
				writeError(w, http.StatusUnauthorized, "invalid token")
			}
			return
		}
		live, err := h.service.CheckLive(r.Context(), claims.Subject)
		if err != nil {
			h.logger.Error("session liveness check failed", "error", err)
			status, msg := mapServiceError(err)
			writeError(w, status, msg)
			return
		}
		if !live {
			writeError(w, http.StatusUnauthorized, "session revoked or invalid")
			return
		}
		identity := Identity{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}
		ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mapServiceError translates auth service sentinels to HTTP responses.
func mapServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, authservice.ErrWeakCredential):
		return http.StatusBadRequest, "invalid email or password format"
	case errors.Is(err, authservice.ErrEmailTaken):
		return http.StatusConflict, "email already registered"
	case errors.Is(err, authservice.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, authservice.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too many attempts, retry later"
	case errors.Is(err, authservice.ErrInvalidOrRevokedSession):
		return http.StatusUnauthorized, "session invalid or revoked"
	case errors.Is(err, authservice.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, context.DeadlineExceeded):
		// Transient: the store did not answer within the request deadline.
		return http.StatusServiceUnavailable, "temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
