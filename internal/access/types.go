// Package access implements the per-module permission model: role defaults,
// user overrides, effective-permission resolution, and the versioned cache.
package access

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is an ordinal access rank. Comparisons always use the ordinal, never
// a storage identifier.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelFull
)

var levelCodes = map[Level]string{
	LevelNone:  "none",
	LevelRead:  "read",
	LevelWrite: "write",
	LevelFull:  "full",
}

func (l Level) String() string {
	if code, ok := levelCodes[l]; ok {
		return code
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Meets reports whether the level satisfies a required minimum.
func (l Level) Meets(min Level) bool { return l >= min }

// ParseLevel maps a string code to its Level.
func ParseLevel(code string) (Level, error) {
	for l, c := range levelCodes {
		if c == code {
			return l, nil
		}
	}
	return LevelNone, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, code)
}

// MarshalJSON encodes levels as their string codes.
func (l Level) MarshalJSON() ([]byte, error) {
	code, ok := levelCodes[l]
	if !ok {
		return nil, fmt.Errorf("invalid access level %d", int(l))
	}
	return json.Marshal(code)
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseLevel(code)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Module is a named capability area permissions are scoped to. Reference
// data, rarely mutated.
type Module struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	Active    bool   `json:"active"`
}

// RoleGrant is the default level a role holds on a module. Grants are
// replaced wholesale per role; there is no partial patch.
type RoleGrant struct {
	RoleID     string `json:"role_id"`
	ModuleCode string `json:"module"`
	Level      Level  `json:"level"`
}

// UserOverride is a per-user exception to the role default for one module.
// Overrides are replaced wholesale per user.
type UserOverride struct {
	UserID     string    `json:"user_id"`
	ModuleCode string    `json:"module"`
	Level      Level     `json:"level"`
	Reason     string    `json:"reason,omitempty"`
	GrantedBy  string    `json:"granted_by,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

// PermissionSet maps module codes to effective levels. A missing module reads
// as LevelNone.
type PermissionSet map[string]Level

// Level returns the effective level for a module, LevelNone when absent.
func (ps PermissionSet) Level(moduleCode string) Level {
	return ps[moduleCode]
}
