package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"traffic-monitor/backend/internal/audit/domain"
	auditrepo "traffic-monitor/backend/internal/audit/repository"
	sessiondomain "traffic-monitor/backend/internal/session/domain"
)

// Audit actions recorded by the auth handlers.
const (
	ActionSignUp         = "sign_up"
	ActionSignIn         = "sign_in"
	ActionSignInFailure  = "sign_in_failure"
	ActionRefresh        = "token_refresh"
	ActionSignOut        = "sign_out"
	ActionSessionRevoke  = "session_revoke"
	ActionProfileUpdate  = "profile_update"
	ActionPasswordChange = "password_change"
)

// AuditLogger writes and reads audit events. LogEvent is best-effort: failures
// are logged and never affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action string, meta sessiondomain.ClientMeta, metadata string)
	Recent(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error)
}

// Logger implements AuditLogger on the audit repository.
type Logger struct {
	repo auditrepo.Repository
	log  *slog.Logger
}

// NewLogger returns an AuditLogger that persists to repo.
func NewLogger(repo auditrepo.Repository, log *slog.Logger) *Logger {
	return &Logger{repo: repo, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action string, meta sessiondomain.ClientMeta, metadata string) {
	if l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		IP:        meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Error("audit: failed to log event", "action", action, "error", err)
	}
}

// Recent returns the user's audit entries, newest first. A nil repository
// yields an empty list.
func (l *Logger) Recent(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	if l.repo == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.ListByUser(ctx, userID, limit, offset)
}
