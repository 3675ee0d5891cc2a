package domain

import "time"

// AuditLog represents one auth audit event.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	IP        string
	UserAgent string
	Metadata  string
	CreatedAt time.Time
}
