package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"traffic-monitor/backend/internal/auth/lockout"
	"traffic-monitor/backend/internal/security"
	sessiondomain "traffic-monitor/backend/internal/session/domain"
	sessionservice "traffic-monitor/backend/internal/session/service"
	userdomain "traffic-monitor/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the handler maps them to HTTP statuses.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakCredential     = errors.New("credential does not meet requirements")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrTooManyAttempts    = errors.New("too many failed sign-in attempts")
)

// ErrInvalidOrRevokedSession is re-exported so handlers depend only on this package.
var ErrInvalidOrRevokedSession = sessionservice.ErrInvalidOrRevokedSession

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	Update(ctx context.Context, u *userdomain.User) error
}

// AuthResult holds the outcome of SignIn or Refresh: both tokens plus the
// authenticated user and the session row behind the refresh token.
type AuthResult struct {
	User            *userdomain.User
	Session         *sessiondomain.Session
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// ProfileUpdate carries the optional fields of an UpdateProfile call. Nil
// pointers leave the field unchanged. A password change requires
// CurrentPassword and revokes every session of the user.
type ProfileUpdate struct {
	FirstName       *string
	LastName        *string
	Email           *string
	CurrentPassword string
	NewPassword     *string
}

// AuthService is the gateway in front of the user store and session manager.
// All sign-up, sign-in, refresh, and revocation flows go through it.
type AuthService struct {
	users            UserRepo
	sessions         *sessionservice.Manager
	hasher           *security.Hasher
	tokens           *security.TokenProvider
	lockouts         lockout.Store // nil disables lockout
	lockoutThreshold int
	lockoutWindow    time.Duration
	now              func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
// Pass a nil lockout store to disable brute-force lockout.
func NewAuthService(
	users UserRepo,
	sessions *sessionservice.Manager,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	lockouts lockout.Store,
	lockoutThreshold int,
	lockoutWindow time.Duration,
) *AuthService {
	return &AuthService{
		users:            users,
		sessions:         sessions,
		hasher:           hasher,
		tokens:           tokens,
		lockouts:         lockouts,
		lockoutThreshold: lockoutThreshold,
		lockoutWindow:    lockoutWindow,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SignUp creates a user with the given email and password. It does not create
// a session; the caller signs in afterwards. Duplicate emails (case
// insensitive) fail with ErrEmailTaken.
func (s *AuthService) SignUp(ctx context.Context, email, password, firstName, lastName string) (*userdomain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         userdomain.RoleUser,
		CreatedAt:    s.now(),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SignIn authenticates with email/password, creates a session, and returns
// both tokens. Unknown email and wrong password produce the same
// ErrInvalidCredentials. Repeated failures lock the account for a while.
func (s *AuthService) SignIn(ctx context.Context, email, password string, meta sessiondomain.ClientMeta) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.checkLockout(ctx, email); err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, s.failAttempt(ctx, email)
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, s.failAttempt(ctx, email)
	}
	s.clearAttempts(ctx, email)

	session, refresh, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	access, accessExp, err := s.tokens.IssueAccess(user.ID, user.Email, user.FullName())
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:            user,
		Session:         session,
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
	}, nil
}

// Refresh rotates the refresh token and issues a fresh access token. A token
// that was already spent, or whose session is revoked or expired, fails with
// ErrInvalidOrRevokedSession.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidOrRevokedSession
	}
	rot, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, rot.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Account deleted out from under a live session.
		_ = s.sessions.RevokeAll(ctx, rot.UserID)
		return nil, ErrInvalidOrRevokedSession
	}
	access, accessExp, err := s.tokens.IssueAccess(user.ID, user.Email, user.FullName())
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:            user,
		Session:         rot.Session,
		AccessToken:     access,
		RefreshToken:    rot.RefreshToken,
		AccessExpiresAt: accessExp,
	}, nil
}

// VerifyAccess validates an access token and returns its claims. Pure CPU; the
// per-request liveness check is separate (CheckLive).
func (s *AuthService) VerifyAccess(token string) (*security.AccessClaims, error) {
	return s.tokens.VerifyAccess(token)
}

// SignOut revokes every session of the user. Idempotent; signing out twice is
// not an error.
func (s *AuthService) SignOut(ctx context.Context, userID string) error {
	return s.sessions.RevokeAll(ctx, userID)
}

// CheckLive reports whether the user still has a live session. The request
// middleware calls this on every protected request so revocation takes effect
// before the access token expires.
func (s *AuthService) CheckLive(ctx context.Context, userID string) (bool, error) {
	return s.sessions.HasLive(ctx, userID)
}

// Profile returns the user's account record.
func (s *AuthService) Profile(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ListSessions returns the user's live sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListLive(ctx, userID)
}

// RevokeSession revokes one of the user's own sessions. Returns false when the
// session is unknown, already revoked, or owned by someone else.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.sessions.RevokeOne(ctx, sessionID, userID)
}

// UpdateProfile applies the given changes to the user's account. Changing the
// email re-checks uniqueness; changing the password verifies the current one
// first and then revokes every session.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*userdomain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if upd.FirstName != nil {
		user.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		user.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			existing, err := s.users.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, ErrEmailTaken
			}
			user.Email = email
		}
	}

	passwordChanged := false
	if upd.NewPassword != nil {
		if err := s.hasher.Compare(user.PasswordHash, []byte(upd.CurrentPassword)); err != nil {
			return nil, ErrInvalidCredentials
		}
		if err := validatePassword(*upd.NewPassword); err != nil {
			return nil, err
		}
		hashed, err := s.hasher.Hash([]byte(*upd.NewPassword))
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hashed
		passwordChanged = true
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	if passwordChanged {
		if err := s.sessions.RevokeAll(ctx, userID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *AuthService) checkLockout(ctx context.Context, email string) error {
	if s.lockouts == nil {
		return nil
	}
	state, err := s.lockouts.Get(ctx, email)
	if err != nil {
		return err
	}
	if state.Locked(s.now()) {
		return ErrTooManyAttempts
	}
	return nil
}

// failAttempt records the failure and always returns ErrInvalidCredentials so
// unknown emails and wrong passwords look identical to the caller.
func (s *AuthService) failAttempt(ctx context.Context, email string) error {
	if s.lockouts != nil {
		_, _ = s.lockouts.RecordFailure(ctx, email, s.now(), s.lockoutThreshold, s.lockoutWindow)
	}
	return ErrInvalidCredentials
}

func (s *AuthService) clearAttempts(ctx context.Context, email string) {
	if s.lockouts != nil {
		_ = s.lockouts.Clear(ctx, email)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return ErrWeakCredential
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	if ok, _ := regexp.MatchString(simpleEmail, email); !ok {
		return ErrWeakCredential
	}
	return nil
}

func validatePassword(password string) error {
	// Upper bound is bcrypt's input limit.
	if len(password) < 8 || len(password) > 72 {
		return ErrWeakCredential
	}
	return nil
}
