// Package telemetry defines the auth event stream: events are produced to
// Kafka and mirrored to OTel logs, and a worker ships them to Loki.
package telemetry

import (
	"encoding/json"
	"time"
)

// Event types emitted by the auth handlers.
const (
	EventSignUp        = "auth.sign_up"
	EventSignIn        = "auth.sign_in"
	EventSignInFailure = "auth.sign_in_failure"
	EventRefresh       = "auth.token_refresh"
	EventSignOut       = "auth.sign_out"
	EventSessionRevoke = "auth.session_revoke"
	EventProfileUpdate = "auth.profile_update"
	EventSessionSweep  = "auth.session_sweep"
)

// SourceAPI labels events produced by the HTTP API process.
const SourceAPI = "auth-api"

// Event is one auth telemetry event. Serialized as JSON onto the Kafka topic;
// field names are part of the wire contract with the Loki worker.
type Event struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an Event of the given type stamped with the current time.
func NewEvent(eventType, userID, sessionID string) *Event {
	return &Event{
		UserID:    userID,
		SessionID: sessionID,
		EventType: eventType,
		Source:    SourceAPI,
		CreatedAt: time.Now().UTC(),
	}
}
