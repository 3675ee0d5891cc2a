package security

import (
	"testing"
	"time"
)

func TestNewTokenProvider_RequiresSecrets(t *testing.T) {
	if _, err := NewTokenProvider("", "refresh", time.Minute, time.Hour); err != ErrNoSigningSecret {
		t.Errorf("empty access secret: want ErrNoSigningSecret, got %v", err)
	}
	if _, err := NewTokenProvider("access", "", time.Minute, time.Hour); err != ErrNoSigningSecret {
		t.Errorf("empty refresh secret: want ErrNoSigningSecret, got %v", err)
	}
}

func TestTokenProvider_IssueAndVerifyAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	access, exp, err := p.IssueAccess("u1", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" {
		t.Fatal("access token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	claims, err := p.VerifyAccess(access)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "alice@example.com" || claims.Name != "Alice" {
		t.Errorf("VerifyAccess: got sub=%q email=%q name=%q", claims.Subject, claims.Email, claims.Name)
	}
}

func TestTokenProvider_IssueAndVerifyRefresh(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	refresh, exp, err := p.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if refresh == "" {
		t.Fatal("refresh token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("refresh expires at in the past")
	}

	claims, err := p.VerifyRefresh(refresh)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("VerifyRefresh: got sub=%q, want u1", claims.Subject)
	}
}

func TestTokenProvider_VerifyMalformed(t *testing.T) {
	p, _ := NewTestTokenProvider()
	if _, err := p.VerifyAccess("not-a-token"); err != ErrTokenMalformed {
		t.Errorf("VerifyAccess malformed: want ErrTokenMalformed, got %v", err)
	}
	if _, err := p.VerifyRefresh("not-a-token"); err != ErrTokenMalformed {
		t.Errorf("VerifyRefresh malformed: want ErrTokenMalformed, got %v", err)
	}
}

func TestTokenProvider_VerifyExpired(t *testing.T) {
	p, err := NewTokenProvider("a-secret", "r-secret", -time.Minute, -time.Minute)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	// Negative TTLs fall back to defaults, so build an expired provider directly.
	p.accessTTL = -time.Minute
	p.refreshTTL = -time.Minute

	access, _, err := p.IssueAccess("u1", "a@b.c", "A")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.VerifyAccess(access); err != ErrTokenExpired {
		t.Errorf("VerifyAccess expired: want ErrTokenExpired, got %v", err)
	}

	refresh, _, err := p.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := p.VerifyRefresh(refresh); err != ErrTokenExpired {
		t.Errorf("VerifyRefresh expired: want ErrTokenExpired, got %v", err)
	}
}

func TestTokenProvider_SecretsAreNotInterchangeable(t *testing.T) {
	p, _ := NewTestTokenProvider()

	refresh, _, err := p.IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := p.VerifyAccess(refresh); err != ErrTokenMalformed {
		t.Errorf("refresh token must not verify as access token, got %v", err)
	}

	access, _, err := p.IssueAccess("u1", "a@b.c", "A")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.VerifyRefresh(access); err != ErrTokenMalformed {
		t.Errorf("access token must not verify as refresh token, got %v", err)
	}
}
