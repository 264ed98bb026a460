package auth

import "time"

// Identity is a login-capable account scoped to a tenant. Identities are
// never deleted, only deactivated, so the audit trail stays intact.
type Identity struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	RoleID         string     `json:"role_id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Active         bool       `json:"active"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RefreshTokenRecord is the persisted half of an opaque refresh token. Only
// the SHA-256 hash of the secret is stored; the raw value exists client-side
// only. ReplacedBy links each record to its successor, forming the rotation
// chain. Records are never deleted.
type RefreshTokenRecord struct {
	ID         string
	IdentityID string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	ClientIP   string
}

// ActiveAt reports whether the record can still be exchanged at the given
// instant.
func (r *RefreshTokenRecord) ActiveAt(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Session is the result of a successful login or refresh exchange.
type Session struct {
	Identity         *Identity
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
