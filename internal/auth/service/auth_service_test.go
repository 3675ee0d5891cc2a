package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"traffic-monitor/backend/internal/auth/lockout"
	"traffic-monitor/backend/internal/security"
	sessiondomain "traffic-monitor/backend/internal/session/domain"
	sessionservice "traffic-monitor/backend/internal/session/service"
	userdomain "traffic-monitor/backend/internal/user/domain"
)

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *memUserRepo) Update(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[u.ID]; ok {
		cp := *u
		r.byID[u.ID] = &cp
	}
	return nil
}

type memSessionRepo struct {
	mu   sync.Mutex
	byID map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{byID: map[string]*sessiondomain.Session{}}
}

func (r *memSessionRepo) Create(_ context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) ListLiveByUser(_ context.Context, userID string, now time.Time) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.Live(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memSessionRepo) RotateRefreshHash(_ context.Context, userID, oldHash, newHash string, expiresAt, now time.Time) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.UserID == userID && s.RefreshTokenHash == oldHash && s.Live(now) {
			s.RefreshTokenHash = newHash
			s.ExpiresAt = expiresAt
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) RevokeAllByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

func (r *memSessionRepo) RevokeByIDForUser(_ context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok || s.UserID != userID || s.Revoked {
		return false, nil
	}
	s.Revoked = true
	return true, nil
}

func (r *memSessionRepo) HasLiveByUser(_ context.Context, userID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.UserID == userID && s.Live(now) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSessionRepo) DeleteByIDs(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.byID, id)
	}
	return nil
}

func (r *memSessionRepo) DeleteRevokedCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if s.Revoked && s.CreatedAt.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) DeleteStaleCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.byID {
		if !s.Revoked && s.CreatedAt.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type memLockoutStore struct {
	mu     sync.Mutex
	states map[string]lockout.State
}

func newMemLockoutStore() *memLockoutStore {
	return &memLockoutStore{states: map[string]lockout.State{}}
}

func (s *memLockoutStore) Get(_ context.Context, key string) (lockout.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key], nil
}

func (s *memLockoutStore) RecordFailure(_ context.Context, key string, now time.Time, threshold int, window time.Duration) (lockout.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.states[key]
	state.FailedCount++
	if state.FailedCount >= threshold {
		until := now.Add(window)
		state.LockedUntil = &until
	}
	s.states[key] = state
	return state, nil
}

func (s *memLockoutStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

type testEnv struct {
	svc      *AuthService
	users    *memUserRepo
	sessions *memSessionRepo
	lockouts *memLockoutStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	lockouts := newMemLockoutStore()
	manager := sessionservice.NewManager(sessions, tokens, 5, 720*time.Hour, 168*time.Hour)
	svc := NewAuthService(users, manager, security.NewHasher(4), tokens, lockouts, 5, 15*time.Minute)
	return &testEnv{svc: svc, users: users, sessions: sessions, lockouts: lockouts}
}

func signUp(t *testing.T, env *testEnv, email, password string) *userdomain.User {
	t.Helper()
	u, err := env.svc.SignUp(context.Background(), email, password, "Alice", "Smith")
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return u
}

func TestSignUp_CreatesUserWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	u := signUp(t, env, "alice@example.com", "correct horse")

	if u.ID == "" {
		t.Fatal("user ID not assigned")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q", u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct horse" {
		t.Error("password must be stored hashed")
	}
	if u.Role != userdomain.RoleUser {
		t.Errorf("role = %q, want user", u.Role)
	}
	if len(env.sessions.byID) != 0 {
		t.Error("sign-up must not create a session")
	}
}

func TestSignUp_DuplicateEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")

	if _, err := env.svc.SignUp(context.Background(), "ALICE@Example.COM", "other password", "A", "B"); err != ErrEmailTaken {
		t.Errorf("want ErrEmailTaken, got %v", err)
	}
}

func TestSignUp_RejectsWeakInput(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name, email, password string
	}{
		{"bad email", "not-an-email", "long enough pw"},
		{"empty email", "", "long enough pw"},
		{"short password", "a@b.com", "short"},
		{"huge password", "a@b.com", string(make([]byte, 200))},
	}
	for _, tc := range cases {
		if _, err := env.svc.SignUp(context.Background(), tc.email, tc.password, "", ""); err != ErrWeakCredential {
			t.Errorf("%s: want ErrWeakCredential, got %v", tc.name, err)
		}
	}
}

func TestSignIn_Success(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")

	res, err := env.svc.SignIn(context.Background(), "Alice@Example.com", "correct horse",
		sessiondomain.ClientMeta{UserAgent: "browser", IPAddress: "192.0.2.1"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("tokens missing")
	}
	if res.Session == nil || res.Session.UserAgent != "browser" {
		t.Errorf("session meta not captured: %+v", res.Session)
	}

	claims, err := env.svc.tokens.VerifyAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != res.User.ID || claims.Email != "alice@example.com" || claims.Name != "Alice Smith" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestSignIn_UniformFailure(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")

	if _, err := env.svc.SignIn(context.Background(), "alice@example.com", "wrong", sessiondomain.ClientMeta{}); err != ErrInvalidCredentials {
		t.Errorf("wrong password: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.svc.SignIn(context.Background(), "nobody@example.com", "whatever", sessiondomain.ClientMeta{}); err != ErrInvalidCredentials {
		t.Errorf("unknown email: want ErrInvalidCredentials, got %v", err)
	}
}

func TestSignIn_LockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")

	for i := 0; i < 5; i++ {
		if _, err := env.svc.SignIn(context.Background(), "alice@example.com", "wrong", sessiondomain.ClientMeta{}); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{}); err != ErrTooManyAttempts {
		t.Errorf("locked account: want ErrTooManyAttempts, got %v", err)
	}
}

func TestSignIn_SuccessClearsFailures(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")

	for i := 0; i < 3; i++ {
		_, _ = env.svc.SignIn(context.Background(), "alice@example.com", "wrong", sessiondomain.ClientMeta{})
	}
	if _, err := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{}); err != nil {
		t.Fatalf("SignIn below threshold: %v", err)
	}
	state, _ := env.lockouts.Get(context.Background(), "alice@example.com")
	if state.FailedCount != 0 {
		t.Errorf("failure count = %d after success, want 0", state.FailedCount)
	}
}

func TestSignIn_CapsSessions(t *testing.T) {
	env := newTestEnv(t)
	u := signUp(t, env, "alice@example.com", "correct horse")

	for i := 0; i < 6; i++ {
		if _, err := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{}); err != nil {
			t.Fatalf("SignIn #%d: %v", i, err)
		}
	}
	live, err := env.svc.ListSessions(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(live) != 5 {
		t.Errorf("live sessions = %d, want 5", len(live))
	}
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")
	first, err := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	second, err := env.svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh must rotate the token")
	}
	if second.User.Email != "alice@example.com" {
		t.Errorf("refreshed user = %q", second.User.Email)
	}

	if _, err := env.svc.Refresh(context.Background(), first.RefreshToken); err != ErrInvalidOrRevokedSession {
		t.Errorf("replayed token: want ErrInvalidOrRevokedSession, got %v", err)
	}
	if _, err := env.svc.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Errorf("latest token should still rotate: %v", err)
	}
}

func TestRefresh_EmptyAndGarbage(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Refresh(context.Background(), ""); err != ErrInvalidOrRevokedSession {
		t.Errorf("empty token: want ErrInvalidOrRevokedSession, got %v", err)
	}
	if _, err := env.svc.Refresh(context.Background(), "garbage"); err != ErrInvalidOrRevokedSession {
		t.Errorf("garbage token: want ErrInvalidOrRevokedSession, got %v", err)
	}
}

func TestSignOut_RevokesEverything(t *testing.T) {
	env := newTestEnv(t)
	u := signUp(t, env, "alice@example.com", "correct horse")
	res, _ := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{})
	_, _ = env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{})

	if err := env.svc.SignOut(context.Background(), u.ID); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	live, err := env.svc.CheckLive(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("CheckLive: %v", err)
	}
	if live {
		t.Error("CheckLive should be false after SignOut")
	}
	if _, err := env.svc.Refresh(context.Background(), res.RefreshToken); err != ErrInvalidOrRevokedSession {
		t.Errorf("refresh after sign-out: want ErrInvalidOrRevokedSession, got %v", err)
	}

	// Idempotent.
	if err := env.svc.SignOut(context.Background(), u.ID); err != nil {
		t.Errorf("second SignOut: %v", err)
	}
}

func TestRevokeSession_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := signUp(t, env, "alice@example.com", "correct horse")
	res, _ := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{})

	ok, err := env.svc.RevokeSession(context.Background(), "someone-else", res.Session.ID)
	if err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if ok {
		t.Error("stranger must not revoke alice's session")
	}

	ok, err = env.svc.RevokeSession(context.Background(), alice.ID, res.Session.ID)
	if err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if !ok {
		t.Error("owner revoke should succeed")
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	u := signUp(t, env, "alice@example.com", "correct horse")

	got, err := env.svc.Profile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got.Email != u.Email {
		t.Errorf("profile email = %q", got.Email)
	}
	if _, err := env.svc.Profile(context.Background(), "missing"); err != ErrUserNotFound {
		t.Errorf("missing user: want ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfile_Names(t *testing.T) {
	env := newTestEnv(t)
	u := signUp(t, env, "alice@example.com", "correct horse")

	first, last := "Alicia", "Jones"
	got, err := env.svc.UpdateProfile(context.Background(), u.ID, ProfileUpdate{FirstName: &first, LastName: &last})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FirstName != "Alicia" || got.LastName != "Jones" {
		t.Errorf("names = %q %q", got.FirstName, got.LastName)
	}
}

func TestUpdateProfile_EmailUniqueness(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, "alice@example.com", "correct horse")
	bob, err := env.svc.SignUp(context.Background(), "bob@example.com", "another pass", "Bob", "")
	if err != nil {
		t.Fatalf("SignUp bob: %v", err)
	}

	taken := "alice@example.com"
	if _, err := env.svc.UpdateProfile(context.Background(), bob.ID, ProfileUpdate{Email: &taken}); err != ErrEmailTaken {
		t.Errorf("want ErrEmailTaken, got %v", err)
	}

	fresh := "bobby@example.com"
	got, err := env.svc.UpdateProfile(context.Background(), bob.ID, ProfileUpdate{Email: &fresh})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.Email != "bobby@example.com" {
		t.Errorf("email = %q", got.Email)
	}
}

func TestUpdateProfile_PasswordChangeRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	u := signUp(t, env, "alice@example.com", "correct horse")
	_, _ = env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{})

	newPass := "even better horse"
	if _, err := env.svc.UpdateProfile(context.Background(), u.ID, ProfileUpdate{
		CurrentPassword: "wrong", NewPassword: &newPass,
	}); err != ErrInvalidCredentials {
		t.Fatalf("wrong current password: want ErrInvalidCredentials, got %v", err)
	}

	if _, err := env.svc.UpdateProfile(context.Background(), u.ID, ProfileUpdate{
		CurrentPassword: "correct horse", NewPassword: &newPass,
	}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	live, _ := env.svc.CheckLive(context.Background(), u.ID)
	if live {
		t.Error("password change must revoke existing sessions")
	}
	if _, err := env.svc.SignIn(context.Background(), "alice@example.com", "correct horse", sessiondomain.ClientMeta{}); err != ErrInvalidCredentials {
		t.Errorf("old password after change: want ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.svc.SignIn(context.Background(), "alice@example.com", newPass, sessiondomain.ClientMeta{}); err != nil {
		t.Errorf("new password should sign in: %v", err)
	}
}
