package security

import "time"

// NewTestTokenProvider returns a TokenProvider with fixed test secrets and short
// lifetimes. For use in tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTokenProvider("test-access-secret", "test-refresh-secret", 15*time.Minute, 168*time.Hour)
}
