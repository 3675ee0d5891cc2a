package repository

import (
	"context"
	"time"

	"traffic-monitor/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// ListLiveByUser returns the user's non-revoked, non-expired sessions,
	// newest first (created_at DESC, id DESC for a stable order).
	ListLiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	// RotateRefreshHash atomically swaps oldHash for newHash on the user's
	// matching live session and extends its expiry. Returns the updated
	// session, or nil when no live session carried oldHash. The swap is a
	// single conditional UPDATE so a replayed token can never win twice.
	RotateRefreshHash(ctx context.Context, userID, oldHash, newHash string, expiresAt, now time.Time) (*domain.Session, error)
	RevokeAllByUser(ctx context.Context, userID string) error
	// RevokeByIDForUser revokes one session only when it belongs to userID.
	// Returns true when a row was revoked.
	RevokeByIDForUser(ctx context.Context, id, userID string) (bool, error)
	// HasLiveByUser reports whether the user has at least one live session.
	HasLiveByUser(ctx context.Context, userID string, now time.Time) (bool, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	// DeleteRevokedCreatedBefore removes revoked sessions older than cutoff
	// and returns the number deleted.
	DeleteRevokedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteStaleCreatedBefore removes non-revoked sessions older than cutoff
	// and returns the number deleted.
	DeleteStaleCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
