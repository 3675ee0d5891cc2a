package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrNoSigningSecret is returned by NewTokenProvider when a secret is empty.
	// Config guarantees this cannot happen in a correctly started process.
	ErrNoSigningSecret = errors.New("signing secret is not set")
	// ErrTokenExpired is returned when a token's signature is valid but it is past expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned when a token's structure or signature is invalid.
	ErrTokenMalformed = errors.New("token malformed or invalid")
)

// AccessClaims holds JWT claims for the access token. Email and Name let the
// frontend render the signed-in user without an extra lookup.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RefreshClaims holds JWT claims for the refresh token (subject only; the
// session row carries everything else).
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// TokenProvider issues and verifies HS256 access and refresh tokens. Access and
// refresh tokens are signed with separate secrets so a leaked access-signing key
// cannot forge refresh tokens and vice versa. Pure CPU; no I/O.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenProvider returns a TokenProvider with the given secrets and lifetimes.
// Fails with ErrNoSigningSecret when either secret is empty; callers treat that
// as fatal at process start, never per-call.
func NewTokenProvider(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, ErrNoSigningSecret
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 168 * time.Hour
	}
	return &TokenProvider{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for the given user.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID, email, name string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Name:  name,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.accessSecret)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT carrying the user id and a
// unique jti, so two tokens minted in the same second never collide. The
// caller stores its digest on a session row; the raw token is never persisted.
func (p *TokenProvider) IssueRefresh(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.refreshSecret)
	return token, expiresAt, err
}

// VerifyAccess parses and validates an access token (signature, exp).
// Returns ErrTokenExpired or ErrTokenMalformed so callers can produce
// different user-facing messages.
func (p *TokenProvider) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := p.verify(tokenString, claims, p.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token (signature, exp).
func (p *TokenProvider) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := p.verify(tokenString, claims, p.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (p *TokenProvider) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !token.Valid {
		return ErrTokenMalformed
	}
	return nil
}
