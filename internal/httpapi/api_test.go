package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinika.org/internal/access"
	"clinika.org/internal/auth"
	"clinika.org/internal/clinic"
)

// In-memory stores backing the handler tests.

type memAuthStore struct {
	mu         sync.Mutex
	identities map[string]*auth.Identity
	byEmail    map[string]string
	tokens     map[string]*auth.RefreshTokenRecord
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{
		identities: make(map[string]*auth.Identity),
		byEmail:    make(map[string]string),
		tokens:     make(map[string]*auth.RefreshTokenRecord),
	}
}

func (m *memAuthStore) Identities(ctx context.Context) auth.IdentityStore {
	return (*memIdentities)(m)
}

func (m *memAuthStore) RefreshTokens(ctx context.Context) auth.RefreshTokenStore {
	return (*memTokens)(m)
}

type memIdentities memAuthStore

func (m *memIdentities) Create(ctx context.Context, identity *auth.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *identity
	m.identities[identity.ID] = &cp
	m.byEmail[identity.Email] = identity.ID
	return nil
}

func (m *memIdentities) Find(ctx context.Context, id string) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (m *memIdentities) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *m.identities[id]
	return &cp, nil
}

func (m *memIdentities) RecordFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return 0, nil, auth.ErrNotFound
	}
	identity.FailedAttempts++
	if identity.FailedAttempts >= threshold {
		until := lockUntil
		identity.LockedUntil = &until
	}
	return identity.FailedAttempts, identity.LockedUntil, nil
}

func (m *memIdentities) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.FailedAttempts = 0
	identity.LockedUntil = nil
	stamp := at
	identity.LastLoginAt = &stamp
	return nil
}

func (m *memIdentities) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.Active = active
	return nil
}

type memTokens memAuthStore

func (m *memTokens) Create(ctx context.Context, rec *auth.RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.tokens[rec.ID] = &cp
	return nil
}

func (m *memTokens) Find(ctx context.Context, id string) (*auth.RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memTokens) Revoke(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok {
		return auth.ErrNotFound
	}
	if rec.RevokedAt == nil {
		stamp := at
		rec.RevokedAt = &stamp
	}
	return nil
}

func (m *memTokens) Rotate(ctx context.Context, predecessorID string, successor *auth.RefreshTokenRecord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pred, ok := m.tokens[predecessorID]
	if !ok {
		return auth.ErrNotFound
	}
	if pred.RevokedAt != nil {
		return auth.ErrInvalidRefreshToken
	}
	stamp := at
	pred.RevokedAt = &stamp
	replaced := successor.ID
	pred.ReplacedBy = &replaced
	cp := *successor
	m.tokens[successor.ID] = &cp
	return nil
}

func (m *memTokens) RevokeAllForIdentity(ctx context.Context, identityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tokens {
		if rec.IdentityID == identityID && rec.RevokedAt == nil {
			stamp := at
			rec.RevokedAt = &stamp
		}
	}
	return nil
}

type memAccessStore struct {
	mu        sync.Mutex
	modules   []access.Module
	grants    map[string][]access.RoleGrant
	overrides map[string][]access.UserOverride
	readErr   error
}

// failReads makes every lookup return err until cleared with nil.
func (m *memAccessStore) failReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

func newMemAccessStore() *memAccessStore {
	return &memAccessStore{
		modules: []access.Module{
			{ID: "mod_admin", Code: access.ModuleAdmin, Name: "Administration", Active: true},
			{ID: "mod_patients", Code: access.ModulePatients, Name: "Patients", SortOrder: 1, Active: true},
		},
		grants:    make(map[string][]access.RoleGrant),
		overrides: make(map[string][]access.UserOverride),
	}
}

func (m *memAccessStore) Modules(ctx context.Context) ([]access.Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return append([]access.Module(nil), m.modules...), nil
}

func (m *memAccessStore) RoleGrants(ctx context.Context, roleID string) ([]access.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return append([]access.RoleGrant(nil), m.grants[roleID]...), nil
}

func (m *memAccessStore) UserOverrides(ctx context.Context, userID string) ([]access.UserOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return append([]access.UserOverride(nil), m.overrides[userID]...), nil
}

func (m *memAccessStore) ReplaceRoleGrants(ctx context.Context, roleID string, entries []access.RoleGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[roleID] = append([]access.RoleGrant(nil), entries...)
	return nil
}

func (m *memAccessStore) ReplaceUserOverrides(ctx context.Context, userID string, entries []access.UserOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[userID] = append([]access.UserOverride(nil), entries...)
	return nil
}

type memPatientStore struct {
	mu       sync.Mutex
	patients map[string]*clinic.Patient
}

func newMemPatientStore() *memPatientStore {
	return &memPatientStore{patients: make(map[string]*clinic.Patient)}
}

func (m *memPatientStore) Create(ctx context.Context, p *clinic.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *memPatientStore) Find(ctx context.Context, tenantID, id string) (*clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, clinic.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPatientStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*clinic.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*clinic.Patient
	for _, p := range m.patients {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// testAPI wires an API over in-memory stores with one seeded identity.
type testAPI struct {
	api       *API
	authStore *memAuthStore
	access    *memAccessStore
	cache     *access.Cache
	identity  *auth.Identity
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	authStore := newMemAuthStore()
	accessStore := newMemAccessStore()
	patientStore := newMemPatientStore()

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	identity := &auth.Identity{
		ID:           "user-1",
		TenantID:     "tenant-1",
		RoleID:       "role-nurse",
		Email:        "nurse@clinic.test",
		PasswordHash: hash,
		Active:       true,
	}
	if err := authStore.Identities(context.Background()).Create(context.Background(), identity); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	accessStore.grants["role-nurse"] = []access.RoleGrant{
		{RoleID: "role-nurse", ModuleCode: access.ModulePatients, Level: access.LevelWrite},
	}

	authSvc, err := auth.NewService(authStore, "test-secret", auth.WithLockout(3, 15*time.Minute))
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	cache := access.NewCache(16, time.Minute)
	accessSvc, err := access.NewService(accessStore, cache)
	if err != nil {
		t.Fatalf("access.NewService: %v", err)
	}
	clinicSvc, err := clinic.NewService(patientStore)
	if err != nil {
		t.Fatalf("clinic.NewService: %v", err)
	}

	return &testAPI{
		api:       New(ReadyProbe{}, "test", authSvc, accessSvc, clinicSvc),
		authStore: authStore,
		access:    accessStore,
		cache:     cache,
		identity:  identity,
	}
}
