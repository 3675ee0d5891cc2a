package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// Deterministic and one-way; used for storing and looking up refresh tokens without
// ever persisting the raw token. Matching against the stored digest happens inside
// the conditional rotation update, never in application code.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
