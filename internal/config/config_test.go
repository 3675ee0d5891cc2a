package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTAccessTTL != "15m" {
		t.Errorf("JWTAccessTTL = %q, want %q", cfg.JWTAccessTTL, "15m")
	}
	if cfg.JWTRefreshTTL != "168h" {
		t.Errorf("JWTRefreshTTL = %q, want %q", cfg.JWTRefreshTTL, "168h")
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.SessionLimit != 5 {
		t.Errorf("SessionLimit = %d, want 5", cfg.SessionLimit)
	}
	if cfg.AuditKafkaTopic != "traffic-monitor-audit" {
		t.Errorf("AuditKafkaTopic = %q, want default", cfg.AuditKafkaTopic)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("SESSION_LIMIT", "3")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.SessionLimit != 3 {
		t.Errorf("SessionLimit = %d, want 3", cfg.SessionLimit)
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")

	_, err := Load()
	if err == nil {
		t.Fatal("Load should fail in production without JWT secrets")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") || !strings.Contains(err.Error(), "JWT_REFRESH_SECRET") {
		t.Errorf("error should name the missing secrets, got %q", err)
	}

	os.Setenv("JWT_SECRET", "prod-access")
	os.Setenv("JWT_REFRESH_SECRET", "prod-refresh")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with secrets: %v", err)
	}
	if cfg.JWTSecret != "prod-access" || cfg.JWTRefreshSecret != "prod-refresh" {
		t.Error("configured secrets not preserved")
	}
}

func TestLoad_DevelopmentFallbackSecrets(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		t.Fatal("development should fill in fallback secrets")
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		t.Error("access and refresh fallback secrets must differ")
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	os.Clearenv()
	os.Setenv("BCRYPT_COST", "99")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject BCRYPT_COST=99")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{
		HTTPRequestTimeout:      "3s",
		JWTAccessTTL:            "5m",
		JWTRefreshTTL:           "24h",
		SessionSweepInterval:    "30m",
		SessionStaleAfter:       "1h",
		SessionRevokedRetention: "2h",
		LoginLockoutWindow:      "10m",
	}
	if got := cfg.AccessTTL(); got != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", got)
	}
	if got := cfg.RefreshTTL(); got != 24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 24h", got)
	}
	if got := cfg.SweepInterval(); got != 30*time.Minute {
		t.Errorf("SweepInterval = %v, want 30m", got)
	}
	if got := cfg.StaleAfter(); got != time.Hour {
		t.Errorf("StaleAfter = %v, want 1h", got)
	}
	if got := cfg.RevokedRetention(); got != 2*time.Hour {
		t.Errorf("RevokedRetention = %v, want 2h", got)
	}
	if got := cfg.LockoutWindow(); got != 10*time.Minute {
		t.Errorf("LockoutWindow = %v, want 10m", got)
	}
	if got := cfg.RequestTimeout(); got != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", got)
	}

	bad := &Config{}
	if got := bad.AccessTTL(); got != 15*time.Minute {
		t.Errorf("AccessTTL fallback = %v, want 15m", got)
	}
	if got := bad.RequestTimeout(); got != 15*time.Second {
		t.Errorf("RequestTimeout fallback = %v, want 15s", got)
	}
	if got := bad.RefreshTTL(); got != 168*time.Hour {
		t.Errorf("RefreshTTL fallback = %v, want 168h", got)
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: "localhost:9092, broker2:9092 ,"}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "localhost:9092" || got[1] != "broker2:9092" {
		t.Errorf("KafkaBrokersList = %v", got)
	}
	empty := &Config{}
	if got := empty.KafkaBrokersList(); got != nil {
		t.Errorf("empty KafkaBrokersList = %v, want nil", got)
	}
}
