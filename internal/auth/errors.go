package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown identities and wrong
	// secrets, including the attempt that trips the lockout threshold.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountInactive is returned for deactivated identities.
	ErrAccountInactive = errors.New("auth: account inactive")

	// ErrInvalidRefreshToken is returned when a presented refresh token is
	// unknown, expired, revoked, or lost a concurrent rotation race.
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")

	// ErrNotFound is the store-level sentinel for missing rows.
	ErrNotFound = errors.New("auth: not found")

	// ErrStoreUnavailable wraps transient persistence failures. Callers may
	// retry; authorization decisions built on it must fail closed.
	ErrStoreUnavailable = errors.New("auth: store unavailable")
)

// LockedError is returned while an identity is inside its lockout window.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("auth: account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// RemainingMinutes reports how long the lockout lasts from now, rounded up,
// never below one. Disclosed to callers for UX messaging.
func (e *LockedError) RemainingMinutes(now time.Time) int {
	remaining := e.Until.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
