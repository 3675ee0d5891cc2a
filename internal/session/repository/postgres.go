package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"traffic-monitor/backend/internal/session/domain"
)

const sessionColumns = "id, user_id, refresh_token_hash, user_agent, ip_address, revoked, created_at, expires_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
	return scanSession(row)
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, user_agent, ip_address, revoked, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.UserAgent, s.IPAddress, s.Revoked, s.CreatedAt, s.ExpiresAt)
	return err
}

// ListLiveByUser returns the user's live sessions, newest first.
func (r *PostgresRepository) ListLiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		 ORDER BY created_at DESC, id DESC`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s := &domain.Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.UserAgent, &s.IPAddress,
			&s.Revoked, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RotateRefreshHash swaps the stored refresh token digest in one conditional
// UPDATE. Zero rows updated means the presented token was already spent,
// revoked, or expired; the caller treats that as a replay.
func (r *PostgresRepository) RotateRefreshHash(ctx context.Context, userID, oldHash, newHash string, expiresAt, now time.Time) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE sessions
		 SET refresh_token_hash = $3, expires_at = $4
		 WHERE user_id = $1 AND refresh_token_hash = $2 AND NOT revoked AND expires_at > $5
		 RETURNING `+sessionColumns,
		userID, oldHash, newHash, expiresAt, now)
	return scanSession(row)
}

// RevokeAllByUser marks every session of the user as revoked.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND NOT revoked", userID)
	return err
}

// RevokeByIDForUser revokes one session if it belongs to the user. Returns true when a row changed.
func (r *PostgresRepository) RevokeByIDForUser(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET revoked = TRUE WHERE id = $1 AND user_id = $2 AND NOT revoked", id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasLiveByUser reports whether the user has at least one live session.
func (r *PostgresRepository) HasLiveByUser(ctx context.Context, userID string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM sessions WHERE user_id = $1 AND NOT revoked AND expires_at > $2)",
		userID, now).Scan(&exists)
	return exists, err
}

// DeleteByIDs hard-deletes the given sessions. A nil or empty slice is a no-op.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRevokedCreatedBefore removes revoked sessions created before cutoff.
func (r *PostgresRepository) DeleteRevokedCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE revoked AND created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStaleCreatedBefore removes non-revoked sessions created before cutoff.
func (r *PostgresRepository) DeleteStaleCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE NOT revoked AND created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	s := &domain.Session{}
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.UserAgent, &s.IPAddress,
		&s.Revoked, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}
