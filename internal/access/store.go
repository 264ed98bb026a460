package access

import (
	"context"
	"errors"
)

var (
	ErrInvalidInput  = errors.New("access: invalid input")
	ErrUnknownModule = errors.New("access: unknown module")
	ErrNotFound      = errors.New("access: not found")
)

// Store describes the persistence operations the permission model requires.
type Store interface {
	// Modules returns the active module catalog in display order.
	Modules(ctx context.Context) ([]Module, error)

	RoleGrants(ctx context.Context, roleID string) ([]RoleGrant, error)
	UserOverrides(ctx context.Context, userID string) ([]UserOverride, error)

	// ReplaceRoleGrants swaps a role's full grant set in one transaction:
	// delete everything, insert the submitted entries. Omitted modules
	// revert to no entry.
	ReplaceRoleGrants(ctx context.Context, roleID string, entries []RoleGrant) error

	// ReplaceUserOverrides swaps a user's full override set in one
	// transaction with the same replacement semantics.
	ReplaceUserOverrides(ctx context.Context, userID string, entries []UserOverride) error
}
