package domain

import "time"

// Session represents a refresh-token session for a user. RefreshTokenHash is
// the SHA-256 digest of the currently valid refresh token; the raw token is
// never stored.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	UserAgent        string
	IPAddress        string
	Revoked          bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Live reports whether the session can still be rotated or used for
// authentication at the given instant.
func (s *Session) Live(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// ClientMeta carries the request metadata captured on each session.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}
