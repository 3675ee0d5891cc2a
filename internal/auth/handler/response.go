package handler

import (
	"encoding/json"
	"net/http"
	"time"

	auditdomain "traffic-monitor/backend/internal/audit/domain"
	sessiondomain "traffic-monitor/backend/internal/session/domain"
	userdomain "traffic-monitor/backend/internal/user/domain"
)

// userPayload is the user shape returned on auth endpoints.
type userPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func toUserPayload(u *userdomain.User) userPayload {
	return userPayload{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      string(u.Role),
	}
}

// sessionPayload is the session shape returned on GET /auth/sessions. The
// token digest is never exposed.
type sessionPayload struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toSessionPayloads(list []*sessiondomain.Session) []sessionPayload {
	out := make([]sessionPayload, len(list))
	for i, s := range list {
		out[i] = sessionPayload{
			ID:        s.ID,
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		}
	}
	return out
}

// activityPayload is one audit entry on GET /auth/activity.
type activityPayload struct {
	Action    string    `json:"action"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toActivityPayloads(list []*auditdomain.AuditLog) []activityPayload {
	out := make([]activityPayload, len(list))
	for i, a := range list {
		out[i] = activityPayload{
			Action:    a.Action,
			IPAddress: a.IP,
			UserAgent: a.UserAgent,
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
