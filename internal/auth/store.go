package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth subsystem requires.
// The core never assumes a relational backing; swap implementations freely.
type Store interface {
	Identities(ctx context.Context) IdentityStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// IdentityStore manages login-capable accounts and their lockout state.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// RecordFailure increments the failed-attempt counter in a single
	// atomic write; when the counter reaches threshold the identity is
	// locked until lockUntil. Returns the post-increment counter and the
	// lockout deadline, if one is now in effect. Concurrent attempts must
	// not lose increments.
	RecordFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)

	// RecordSuccess resets the counter, clears any lock, and stamps the
	// last-login time.
	RecordSuccess(ctx context.Context, id string, at time.Time) error

	SetActive(ctx context.Context, id string, active bool) error
}

// RefreshTokenStore manages the refresh-token ledger. Records are append-and-
// mutate only; revocation and replacement keep the chain auditable.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	Find(ctx context.Context, id string) (*RefreshTokenRecord, error)

	// Revoke marks a single record revoked. Revoking an already-revoked
	// record is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error

	// Rotate atomically inserts the successor record and revokes the
	// predecessor, linking it via ReplacedBy. If the predecessor was
	// already revoked (a concurrent rotation won), nothing is written and
	// ErrInvalidRefreshToken is returned.
	Rotate(ctx context.Context, predecessorID string, successor *RefreshTokenRecord, at time.Time) error

	// RevokeAllForIdentity revokes every active record owned by the
	// identity. Used on detected token reuse and on administrative
	// compromise response.
	RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error
}
