package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"clinika.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Identities(context.Context) IdentityStore {
	return &identityStore{db: s.db}
}

func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// Identity store -----------------------------------------------------------

type identityStore struct{ db *sql.DB }

const identityColumns = `id, tenant_id, role_id, email, password_hash, active,
	failed_attempts, locked_until, last_login_at, created_at, updated_at`

func (s *identityStore) Create(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, tenant_id, role_id, email, password_hash, active)
		 values($1,$2,$3,$4,$5,$6)`,
		identity.ID, identity.TenantID, identity.RoleID, identity.Email,
		identity.PasswordHash, identity.Active,
	)
	return err
}

func (s *identityStore) Find(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id=$1`, id)
	return scanIdentity(row)
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where email=$1`, email)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(
		&ident.ID, &ident.TenantID, &ident.RoleID, &ident.Email,
		&ident.PasswordHash, &ident.Active, &ident.FailedAttempts,
		&ident.LockedUntil, &ident.LastLoginAt, &ident.CreatedAt, &ident.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// The counter increment and the conditional lock transition happen in one
// UPDATE so concurrent attempts on the same identity cannot lose increments.
func (s *identityStore) RecordFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`update identities
		    set failed_attempts = failed_attempts + 1,
		        locked_until = case when failed_attempts + 1 >= $2 then $3 else locked_until end,
		        updated_at = now()
		  where id = $1
		  returning failed_attempts, locked_until`,
		id, threshold, lockUntil,
	)
	var (
		attempts    int
		lockedUntil *time.Time
	)
	if err := row.Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

func (s *identityStore) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update identities
		    set failed_attempts = 0,
		        locked_until = null,
		        last_login_at = $2,
		        updated_at = now()
		  where id = $1`,
		id, at,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *identityStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Refresh token store ------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

const refreshColumns = `id, identity_id, token_hash, issued_at, expires_at,
	revoked_at, replaced_by, client_ip`

func (s *refreshTokenStore) Create(ctx context.Context, rec *RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, identity_id, token_hash, issued_at, expires_at, client_ip)
		 values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.IdentityID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt, rec.ClientIP,
	)
	return err
}

func (s *refreshTokenStore) Find(ctx context.Context, id string) (*RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where id=$1`, id)
	var rec RefreshTokenRecord
	err := row.Scan(
		&rec.ID, &rec.IdentityID, &rec.TokenHash, &rec.IssuedAt, &rec.ExpiresAt,
		&rec.RevokedAt, &rec.ReplacedBy, &rec.ClientIP,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2 where id=$1 and revoked_at is null`,
		id, at,
	)
	return err
}

func (s *refreshTokenStore) Rotate(ctx context.Context, predecessorID string, successor *RefreshTokenRecord, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into refresh_tokens(id, identity_id, token_hash, issued_at, expires_at, client_ip)
		 values($1,$2,$3,$4,$5,$6)`,
		successor.ID, successor.IdentityID, successor.TokenHash,
		successor.IssuedAt, successor.ExpiresAt, successor.ClientIP,
	); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2, replaced_by=$3
		  where id=$1 and revoked_at is null`,
		predecessorID, at, successor.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// A concurrent rotation already consumed the predecessor; abort
		// so the successor never becomes visible.
		return ErrInvalidRefreshToken
	}
	return tx.Commit()
}

func (s *refreshTokenStore) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at=$2
		  where identity_id=$1 and revoked_at is null and expires_at > $2`,
		identityID, at,
	)
	return err
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
