package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"traffic-monitor/backend/internal/security"
	"traffic-monitor/backend/internal/session/domain"
)

// ErrInvalidOrRevokedSession is returned by Rotate when the presented refresh
// token does not match any live session. Covers replayed, revoked, and expired
// tokens alike so the caller cannot distinguish them.
var ErrInvalidOrRevokedSession = errors.New("invalid or revoked session")

// SessionRepo is the minimal session repository needed by the manager.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	ListLiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	RotateRefreshHash(ctx context.Context, userID, oldHash, newHash string, expiresAt, now time.Time) (*domain.Session, error)
	RevokeAllByUser(ctx context.Context, userID string) error
	RevokeByIDForUser(ctx context.Context, id, userID string) (bool, error)
	HasLiveByUser(ctx context.Context, userID string, now time.Time) (bool, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteRevokedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteStaleCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Rotation is the outcome of a successful refresh-token rotation. The caller
// issues the access token; the manager only deals in sessions.
type Rotation struct {
	UserID       string
	Session      *domain.Session
	RefreshToken string
}

// SweepResult reports how many rows one sweep pass removed.
type SweepResult struct {
	RevokedDeleted int64
	StaleDeleted   int64
}

// Manager owns the session lifecycle: creation with a per-user cap, strict
// one-time refresh rotation, revocation, and periodic cleanup.
type Manager struct {
	sessions         SessionRepo
	tokens           *security.TokenProvider
	limit            int
	staleAfter       time.Duration
	revokedRetention time.Duration
	now              func() time.Time
}

// NewManager returns a Manager with the given dependencies. limit <= 0 means
// no cap is enforced.
func NewManager(sessions SessionRepo, tokens *security.TokenProvider, limit int, staleAfter, revokedRetention time.Duration) *Manager {
	return &Manager{
		sessions:         sessions,
		tokens:           tokens,
		limit:            limit,
		staleAfter:       staleAfter,
		revokedRetention: revokedRetention,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a refresh token, persists a session carrying its digest, and
// enforces the per-user cap by hard-deleting the oldest live sessions beyond
// the limit. Returns the session and the raw refresh token.
func (m *Manager) Create(ctx context.Context, userID string, meta domain.ClientMeta) (*domain.Session, string, error) {
	refresh, expiresAt, err := m.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, "", err
	}
	now := m.now()
	s := &domain.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		RefreshTokenHash: security.HashRefreshToken(refresh),
		UserAgent:        meta.UserAgent,
		IPAddress:        meta.IPAddress,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return nil, "", err
	}
	if err := m.enforceLimit(ctx, userID); err != nil {
		return nil, "", err
	}
	return s, refresh, nil
}

// enforceLimit deletes the oldest live sessions beyond the cap. The list is
// newest first, so everything past index limit-1 goes.
func (m *Manager) enforceLimit(ctx context.Context, userID string) error {
	if m.limit <= 0 {
		return nil
	}
	live, err := m.sessions.ListLiveByUser(ctx, userID, m.now())
	if err != nil {
		return err
	}
	if len(live) <= m.limit {
		return nil
	}
	excess := make([]string, 0, len(live)-m.limit)
	for _, s := range live[m.limit:] {
		excess = append(excess, s.ID)
	}
	return m.sessions.DeleteByIDs(ctx, excess)
}

// Rotate verifies the refresh token, then atomically swaps the stored digest
// for a new one. A token that was already rotated, or whose session is revoked
// or expired, yields ErrInvalidOrRevokedSession. Exactly one concurrent caller
// with the same token can win.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*Rotation, error) {
	claims, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidOrRevokedSession
	}
	userID := claims.Subject

	next, expiresAt, err := m.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}
	oldHash := security.HashRefreshToken(refreshToken)
	newHash := security.HashRefreshToken(next)
	s, err := m.sessions.RotateRefreshHash(ctx, userID, oldHash, newHash, expiresAt, m.now())
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrInvalidOrRevokedSession
	}
	return &Rotation{UserID: userID, Session: s, RefreshToken: next}, nil
}

// RevokeAll revokes every session of the user. Idempotent.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.sessions.RevokeAllByUser(ctx, userID)
}

// RevokeOne revokes a single session owned by the user. Returns false when the
// session does not exist, belongs to someone else, or was already revoked.
func (m *Manager) RevokeOne(ctx context.Context, sessionID, userID string) (bool, error) {
	return m.sessions.RevokeByIDForUser(ctx, sessionID, userID)
}

// HasLive reports whether the user currently has any live session.
func (m *Manager) HasLive(ctx context.Context, userID string) (bool, error) {
	return m.sessions.HasLiveByUser(ctx, userID, m.now())
}

// ListLive returns the user's live sessions, newest first.
func (m *Manager) ListLive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return m.sessions.ListLiveByUser(ctx, userID, m.now())
}

// Sweep deletes revoked sessions past their retention window and non-revoked
// sessions idle past the stale cutoff. Safe to run concurrently and repeatedly.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	now := m.now()
	var res SweepResult
	var err error
	res.RevokedDeleted, err = m.sessions.DeleteRevokedCreatedBefore(ctx, now.Add(-m.revokedRetention))
	if err != nil {
		return res, err
	}
	res.StaleDeleted, err = m.sessions.DeleteStaleCreatedBefore(ctx, now.Add(-m.staleAfter))
	return res, err
}
