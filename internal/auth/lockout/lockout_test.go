package lockout

import (
	"testing"
	"time"
)

func TestState_Locked(t *testing.T) {
	now := time.Now().UTC()

	if (State{}).Locked(now) {
		t.Error("zero state must not be locked")
	}

	future := now.Add(time.Minute)
	if !(State{FailedCount: 5, LockedUntil: &future}).Locked(now) {
		t.Error("state with future LockedUntil must be locked")
	}

	past := now.Add(-time.Minute)
	if (State{FailedCount: 5, LockedUntil: &past}).Locked(now) {
		t.Error("expired lockout must not be locked")
	}
}
