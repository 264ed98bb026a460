package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinika.org/internal/obs"
)

// Service resolves effective permissions and applies wholesale grant
// replacements over a pluggable Store.
type Service struct {
	store Store
	cache *Cache
}

// NewService constructs a Service. The cache is optional; without one every
// Effective call resolves from the store.
func NewService(store Store, cache *Cache) (*Service, error) {
	if store == nil {
		return nil, errors.New("access: store is required")
	}
	return &Service{store: store, cache: cache}, nil
}

// Modules returns the active module catalog.
func (s *Service) Modules(ctx context.Context) ([]Module, error) {
	return s.store.Modules(ctx)
}

// RoleGrants returns a role's current default grant set.
func (s *Service) RoleGrants(ctx context.Context, roleID string) ([]RoleGrant, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.RoleGrants(ctx, roleID)
}

// UserOverrides returns a user's current override set.
func (s *Service) UserOverrides(ctx context.Context, userID string) ([]UserOverride, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.UserOverrides(ctx, userID)
}

// Resolve computes the effective level for one (user, module) pair: override
// if present, else the role default, else LevelNone.
func (s *Service) Resolve(ctx context.Context, userID, roleID, moduleCode string) (Level, error) {
	overrides, err := s.store.UserOverrides(ctx, userID)
	if err != nil {
		return LevelNone, err
	}
	for _, o := range overrides {
		if o.ModuleCode == moduleCode {
			return o.Level, nil
		}
	}
	grants, err := s.store.RoleGrants(ctx, roleID)
	if err != nil {
		return LevelNone, err
	}
	for _, g := range grants {
		if g.ModuleCode == moduleCode {
			return g.Level, nil
		}
	}
	return LevelNone, nil
}

// ResolveAll computes the effective level for every active module in one
// pass. Every active module appears in the result, defaulting to LevelNone.
func (s *Service) ResolveAll(ctx context.Context, userID, roleID string) (PermissionSet, error) {
	modules, err := s.store.Modules(ctx)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.RoleGrants(ctx, roleID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.UserOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := make(PermissionSet, len(modules))
	for _, m := range modules {
		set[m.Code] = LevelNone
	}
	for _, g := range grants {
		if _, ok := set[g.ModuleCode]; ok {
			set[g.ModuleCode] = g.Level
		}
	}
	for _, o := range overrides {
		if _, ok := set[o.ModuleCode]; ok {
			set[o.ModuleCode] = o.Level
		}
	}
	return set, nil
}

// Effective returns the user's permission set, served from the cache when a
// fresh entry exists under the current version.
func (s *Service) Effective(ctx context.Context, userID, roleID string) (PermissionSet, error) {
	if s.cache != nil {
		if set, ok := s.cache.Get(userID); ok {
			obs.RecordPermissionCache(true)
			return set, nil
		}
		obs.RecordPermissionCache(false)
	}
	set, err := s.ResolveAll(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(userID, set)
	}
	return set, nil
}

// ReplaceRoleGrants swaps a role's full default set and invalidates the
// cache. Any module omitted from entries reverts to no entry.
func (s *Service) ReplaceRoleGrants(ctx context.Context, roleID string, entries []RoleGrant) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	cleaned, err := normalizeGrants(entries)
	if err != nil {
		return err
	}
	for i := range cleaned {
		cleaned[i].RoleID = roleID
	}
	if err := s.store.ReplaceRoleGrants(ctx, roleID, cleaned); err != nil {
		return err
	}
	s.bump()
	return nil
}

// ReplaceUserOverrides swaps a user's full override set and invalidates the
// cache. grantedBy records the administrator applying the change.
func (s *Service) ReplaceUserOverrides(ctx context.Context, userID, grantedBy string, entries []UserOverride) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(entries))
	cleaned := make([]UserOverride, 0, len(entries))
	for _, e := range entries {
		e.ModuleCode = strings.TrimSpace(e.ModuleCode)
		if e.ModuleCode == "" {
			return fmt.Errorf("%w: module code is required", ErrInvalidInput)
		}
		if _, dup := seen[e.ModuleCode]; dup {
			return fmt.Errorf("%w: duplicate module %q", ErrInvalidInput, e.ModuleCode)
		}
		seen[e.ModuleCode] = struct{}{}
		if _, ok := levelCodes[e.Level]; !ok {
			return fmt.Errorf("%w: invalid level for module %q", ErrInvalidInput, e.ModuleCode)
		}
		e.UserID = userID
		e.GrantedBy = grantedBy
		cleaned = append(cleaned, e)
	}
	if err := s.store.ReplaceUserOverrides(ctx, userID, cleaned); err != nil {
		return err
	}
	s.bump()
	return nil
}

func (s *Service) bump() {
	if s.cache != nil {
		s.cache.Bump()
	}
}

func normalizeGrants(entries []RoleGrant) ([]RoleGrant, error) {
	seen := make(map[string]struct{}, len(entries))
	cleaned := make([]RoleGrant, 0, len(entries))
	for _, e := range entries {
		e.ModuleCode = strings.TrimSpace(e.ModuleCode)
		if e.ModuleCode == "" {
			return nil, fmt.Errorf("%w: module code is required", ErrInvalidInput)
		}
		if _, dup := seen[e.ModuleCode]; dup {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrInvalidInput, e.ModuleCode)
		}
		seen[e.ModuleCode] = struct{}{}
		if _, ok := levelCodes[e.Level]; !ok {
			return nil, fmt.Errorf("%w: invalid level for module %q", ErrInvalidInput, e.ModuleCode)
		}
		cleaned = append(cleaned, e)
	}
	return cleaned, nil
}
