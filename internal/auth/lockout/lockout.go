// Package lockout tracks failed sign-in attempts per account so repeated
// password guessing can be slowed down.
package lockout

import (
	"context"
	"time"
)

// State is the lockout record for one key (lowercased email).
type State struct {
	FailedCount int
	LockedUntil *time.Time // nil when not locked
}

// Locked reports whether the state blocks sign-in at the given instant.
func (s State) Locked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Store persists lockout state. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (State, error)
	// RecordFailure increments the failure counter and, once threshold is
	// reached, locks the key for window. Returns the updated state.
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (State, error)
	Clear(ctx context.Context, key string) error
}
