// Package auth implements the session core: credential login with lockout,
// access-token issuance, and the rotating refresh-token ledger.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinika.org/internal/obs"
)

// Service coordinates credential verification, lockout state, and token
// issuance over a pluggable Store.
type Service struct {
	store Store
	now   func() time.Time

	secret []byte
	issuer string

	accessTTL  time.Duration
	refreshTTL time.Duration

	lockoutThreshold int
	lockoutDuration  time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source. Useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithLockout configures the failed-attempt threshold and the lockout window.
func WithLockout(threshold int, duration time.Duration) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.lockoutThreshold = threshold
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

const (
	defaultAccessTTL        = 15 * time.Minute
	defaultRefreshTTL       = 14 * 24 * time.Hour
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultIssuer           = "clinika"
)

// NewService constructs a Service. The signing secret is mandatory; a missing
// secret is a configuration error, not a runtime condition.
func NewService(store Store, secret string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &Service{
		store:            store,
		now:              time.Now,
		secret:           []byte(secret),
		issuer:           defaultIssuer,
		accessTTL:        defaultAccessTTL,
		refreshTTL:       defaultRefreshTTL,
		lockoutThreshold: defaultLockoutThreshold,
		lockoutDuration:  defaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RefreshTTL reports the configured refresh-token lifetime. The HTTP layer
// uses it to bound the refresh cookie.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// Login runs the credential check under the lockout state machine and, on
// success, issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password, clientIP string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	identities := s.store.Identities(ctx)
	identity, err := identities.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, storeErr("find identity", err)
	}

	now := s.now()
	if identity.LockedUntil != nil && now.Before(*identity.LockedUntil) {
		return Session{}, &LockedError{Until: *identity.LockedUntil}
	}
	if !identity.Active {
		return Session{}, ErrAccountInactive
	}

	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		_, lockedUntil, recErr := identities.RecordFailure(ctx, identity.ID, s.lockoutThreshold, now.Add(s.lockoutDuration))
		if recErr != nil {
			return Session{}, storeErr("record failed attempt", recErr)
		}
		obs.RecordLoginFailure()
		if lockedUntil != nil {
			obs.RecordLockout()
		}
		// The attempt that trips the lockout still reads as bad
		// credentials; the lock surfaces on the next attempt.
		return Session{}, ErrInvalidCredentials
	}

	if err := identities.RecordSuccess(ctx, identity.ID, now); err != nil {
		return Session{}, storeErr("record login", err)
	}
	identity.FailedAttempts = 0
	identity.LockedUntil = nil
	identity.LastLoginAt = &now

	return s.mint(ctx, identity, clientIP, now)
}

// Refresh exchanges an active refresh token for a new pair, rotating the
// ledger record. Replay of a revoked token revokes the identity's remaining
// active chain before failing.
func (s *Service) Refresh(ctx context.Context, rawToken, clientIP string) (Session, error) {
	recordID, secret, err := splitRefreshToken(rawToken)
	if err != nil {
		return Session{}, ErrInvalidRefreshToken
	}

	tokens := s.store.RefreshTokens(ctx)
	rec, err := tokens.Find(ctx, recordID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, storeErr("find refresh token", err)
	}

	now := s.now()
	if !refreshSecretMatches(rec.TokenHash, secret) {
		// Wrong secret on a known record id is unauthenticated input;
		// the record stays live so a guessed id cannot kill a session.
		obs.RecordRefresh("rejected")
		return Session{}, ErrInvalidRefreshToken
	}
	if rec.RevokedAt != nil {
		// A revoked token coming back is a theft signal: cut the whole
		// remaining chain for this identity.
		if err := tokens.RevokeAllForIdentity(ctx, rec.IdentityID, now); err != nil {
			return Session{}, storeErr("revoke token chain", err)
		}
		obs.RecordRefresh("replayed")
		return Session{}, ErrInvalidRefreshToken
	}
	if !now.Before(rec.ExpiresAt) {
		obs.RecordRefresh("expired")
		return Session{}, ErrInvalidRefreshToken
	}

	identity, err := s.store.Identities(ctx).Find(ctx, rec.IdentityID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, storeErr("find identity", err)
	}
	if !identity.Active {
		return Session{}, ErrAccountInactive
	}

	rawSuccessor, successorID, successorHash, err := newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	successor := &RefreshTokenRecord{
		ID:         successorID,
		IdentityID: identity.ID,
		TokenHash:  successorHash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
		ClientIP:   clientIP,
	}

	// Insert + revoke commit together; if the presented record lost a
	// concurrent rotation race, nothing is written.
	if err := tokens.Rotate(ctx, rec.ID, successor, now); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			obs.RecordRefresh("lost_race")
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, storeErr("rotate refresh token", err)
	}

	accessToken, accessExpiry, err := s.issueAccessToken(identity, now)
	if err != nil {
		return Session{}, err
	}
	obs.RecordRefresh("rotated")
	return Session{
		Identity:         identity,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     rawSuccessor,
		RefreshExpiresAt: successor.ExpiresAt,
	}, nil
}

// Logout revokes the presented refresh token. The rest of the chain is left
// untouched.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	recordID, secret, err := splitRefreshToken(rawToken)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	tokens := s.store.RefreshTokens(ctx)
	rec, err := tokens.Find(ctx, recordID)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidRefreshToken
	}
	if err != nil {
		return storeErr("find refresh token", err)
	}
	if !refreshSecretMatches(rec.TokenHash, secret) {
		return ErrInvalidRefreshToken
	}
	if err := tokens.Revoke(ctx, rec.ID, s.now()); err != nil {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

// Identity loads an identity by id.
func (s *Service) Identity(ctx context.Context, id string) (*Identity, error) {
	identity, err := s.store.Identities(ctx).Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find identity", err)
	}
	return identity, nil
}

// RevokeAll revokes every active refresh token for an identity.
func (s *Service) RevokeAll(ctx context.Context, identityID string) error {
	if err := s.store.RefreshTokens(ctx).RevokeAllForIdentity(ctx, identityID, s.now()); err != nil {
		return storeErr("revoke all", err)
	}
	return nil
}

func (s *Service) mint(ctx context.Context, identity *Identity, clientIP string, now time.Time) (Session, error) {
	accessToken, accessExpiry, err := s.issueAccessToken(identity, now)
	if err != nil {
		return Session{}, err
	}
	rawRefresh, recordID, hash, err := newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	rec := &RefreshTokenRecord{
		ID:         recordID,
		IdentityID: identity.ID,
		TokenHash:  hash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
		ClientIP:   clientIP,
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return Session{}, storeErr("persist refresh token", err)
	}
	return Session{
		Identity:         identity,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     rawRefresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}
