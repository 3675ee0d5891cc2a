// Package handler exposes the auth service over HTTP. The refresh token
// travels only in an HttpOnly cookie; the access token in the response body.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"traffic-monitor/backend/internal/audit"
	authservice "traffic-monitor/backend/internal/auth/service"
	sessiondomain "traffic-monitor/backend/internal/session/domain"
	"traffic-monitor/backend/internal/telemetry"
)

// refreshCookieName is part of the wire contract with the frontend.
const refreshCookieName = "refreshToken"

// Handler wires the auth service to chi routes.
type Handler struct {
	service       *authservice.AuthService
	auditor       audit.AuditLogger
	emitter       telemetry.EventEmitter
	metrics       *telemetry.Metrics
	logger        *slog.Logger
	secureCookies bool
	refreshTTL    time.Duration
}

// NewHandler returns a Handler. auditor, emitter, and metrics may be nil;
// those concerns are then skipped.
func NewHandler(
	service *authservice.AuthService,
	auditor audit.AuditLogger,
	emitter telemetry.EventEmitter,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
	secureCookies bool,
	refreshTTL time.Duration,
) *Handler {
	return &Handler{
		service:       service,
		auditor:       auditor,
		emitter:       emitter,
		metrics:       metrics,
		logger:        logger,
		secureCookies: secureCookies,
		refreshTTL:    refreshTTL,
	}
}

// Mount registers the auth routes on r. rateLimit guards the credential
// endpoints; pass nil to disable.
func (h *Handler) Mount(r chi.Router, rateLimit func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if rateLimit != nil {
				r.Use(rateLimit)
			}
			r.Post("/signup", h.signUp)
			r.Post("/signin", h.signIn)
		})
		r.Post("/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Post("/signout", h.signOut)
			r.Get("/me", h.me)
			r.Patch("/me", h.updateProfile)
			r.Get("/sessions", h.listSessions)
			r.Delete("/sessions/{sessionID}", h.revokeSession)
			r.Get("/activity", h.listActivity)
		})
	})
}

type signUpRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	user, err := h.service.SignUp(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	h.observe("sign_up", err)
	if err != nil {
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	h.record(r, user.ID, audit.ActionSignUp, telemetry.EventSignUp, "")
	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserPayload(user)})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := h.service.SignIn(r.Context(), req.Email, req.Password, clientMeta(r))
	h.observe("sign_in", err)
	if err != nil {
		h.record(r, "", audit.ActionSignInFailure, telemetry.EventSignInFailure,
			fmt.Sprintf(`{"email":%q}`, req.Email))
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	h.setRefreshCookie(w, res.RefreshToken)
	h.recordWithSession(r, res.User.ID, res.Session.ID, audit.ActionSignIn, telemetry.EventSignIn)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": res.AccessToken,
		"user":        toUserPayload(res.User),
	})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "refresh token missing")
		return
	}
	res, err := h.service.Refresh(r.Context(), cookie.Value)
	h.observe("refresh", err)
	if err != nil {
		// Clear the cookie only when the token itself is rejected. A transient
		// store failure must not sign the user out.
		if errors.Is(err, authservice.ErrInvalidOrRevokedSession) {
			h.clearRefreshCookie(w)
		}
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	h.setRefreshCookie(w, res.RefreshToken)
	h.recordWithSession(r, res.User.ID, res.Session.ID, audit.ActionRefresh, telemetry.EventRefresh)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": res.AccessToken,
		"user":        toUserPayload(res.User),
	})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	err := h.service.SignOut(r.Context(), identity.UserID)
	h.observe("sign_out", err)
	if err != nil {
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	h.clearRefreshCookie(w)
	h.record(r, identity.UserID, audit.ActionSignOut, telemetry.EventSignOut, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	user, err := h.service.Profile(r.Context(), identity.UserID)
	if err != nil {
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(user)})
}

type updateProfileRequest struct {
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	Email           *string `json:"email"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     *string `json:"newPassword"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), identity.UserID, authservice.ProfileUpdate{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	h.observe("profile_update", err)
	if err != nil {
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	action := audit.ActionProfileUpdate
	if req.NewPassword != nil {
		action = audit.ActionPasswordChange
		h.clearRefreshCookie(w)
	}
	h.record(r, identity.UserID, action, telemetry.EventProfileUpdate, "")
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(user)})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	sessions, err := h.service.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": toSessionPayloads(sessions)})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	ok, err := h.service.RevokeSession(r.Context(), identity.UserID, sessionID)
	h.observe("session_revoke", err)
	if err != nil {
		status, msg := mapServiceError(err)
		writeError(w, status, msg)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.record(r, identity.UserID, audit.ActionSessionRevoke, telemetry.EventSessionRevoke, fmt.Sprintf(`{"sessionId":%q}`, sessionID))
	w.WriteHeader(http.StatusNoContent)
}

// listActivity returns the caller's recent audit entries, newest first.
// Optional limit and offset query parameters page through the history.
func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	if h.auditor == nil {
		writeJSON(w, http.StatusOK, map[string]any{"activity": []activityPayload{}})
		return
	}
	limit := queryInt32(r, "limit", 50)
	offset := queryInt32(r, "offset", 0)
	entries, err := h.auditor.Recent(r.Context(), identity.UserID, limit, offset)
	if err != nil {
		h.logger.Error("audit history lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": toActivityPayloads(entries)})
}

func queryInt32(r *http.Request, name string, fallback int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(n)
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) observe(operation string, err error) {
	h.metrics.ObserveOp(operation, err)
}

// record writes an audit row and emits a telemetry event, both best-effort.
func (h *Handler) record(r *http.Request, userID, action, eventType, metadata string) {
	meta := clientMeta(r)
	if h.auditor != nil {
		h.auditor.LogEvent(r.Context(), userID, action, meta, metadata)
	}
	if h.emitter != nil {
		ev := telemetry.NewEvent(eventType, userID, "")
		if metadata != "" {
			ev.Metadata = json.RawMessage(metadata)
		}
		telemetry.EmitAsync(h.emitter, ev)
	}
}

func (h *Handler) recordWithSession(r *http.Request, userID, sessionID, action, eventType string) {
	meta := clientMeta(r)
	if h.auditor != nil {
		h.auditor.LogEvent(r.Context(), userID, action, meta, fmt.Sprintf(`{"sessionId":%q}`, sessionID))
	}
	if h.emitter != nil {
		telemetry.EmitAsync(h.emitter, telemetry.NewEvent(eventType, userID, sessionID))
	}
}

func clientMeta(r *http.Request) sessiondomain.ClientMeta {
	// X-Forwarded-For accumulates one entry per hop; the first is the client.
	ip, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	ip = strings.TrimSpace(ip)
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return sessiondomain.ClientMeta{UserAgent: r.UserAgent(), IPAddress: ip}
}
