package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"clinika.org/internal/access"
	"clinika.org/internal/audit"
	"clinika.org/internal/auth"
)

type permissionEntry struct {
	Module string       `json:"module"`
	Level  access.Level `json:"level"`
}

type overrideEntry struct {
	Module string       `json:"module"`
	Level  access.Level `json:"level"`
	Reason string       `json:"reason,omitempty"`
}

type replacePermissionsRequest struct {
	Permissions []permissionEntry `json:"permissions"`
}

type replaceOverridesRequest struct {
	Overrides []overrideEntry `json:"overrides"`
}

func (a *API) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	modules, err := a.access.Modules(r.Context())
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules})
}

// handleRoleResource dispatches /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]

	switch r.Method {
	case http.MethodGet:
		grants, err := a.access.RoleGrants(r.Context(), roleID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": grants})
	case http.MethodPut:
		var req replacePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entries := make([]access.RoleGrant, 0, len(req.Permissions))
		for _, p := range req.Permissions {
			entries = append(entries, access.RoleGrant{
				RoleID:     roleID,
				ModuleCode: p.Module,
				Level:      p.Level,
			})
		}
		if err := a.access.ReplaceRoleGrants(r.Context(), roleID, entries); err != nil {
			handleAccessError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "access.role.permissions.replace", map[string]any{
			"role_id": roleID,
			"count":   fmt.Sprintf("%d", len(entries)),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// handleUserResource dispatches /v1/users/{id}/overrides and
// /v1/users/{id}/permissions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]

	switch parts[1] {
	case "overrides":
		a.handleUserOverrides(w, r, userID)
	case "permissions":
		a.handleUserPermissions(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserOverrides(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		overrides, err := a.access.UserOverrides(r.Context(), userID)
		if err != nil {
			handleAccessError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"overrides": overrides})
	case http.MethodPut:
		var req replaceOverridesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		grantedBy := ""
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
			grantedBy = claims.Subject
		}
		entries := make([]access.UserOverride, 0, len(req.Overrides))
		for _, o := range req.Overrides {
			entries = append(entries, access.UserOverride{
				UserID:     userID,
				ModuleCode: o.Module,
				Level:      o.Level,
				Reason:     o.Reason,
			})
		}
		if err := a.access.ReplaceUserOverrides(r.Context(), userID, grantedBy, entries); err != nil {
			handleAccessError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "access.user.overrides.replace", map[string]any{
			"user_id": userID,
			"count":   fmt.Sprintf("%d", len(entries)),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, err := a.auth.Identity(r.Context(), userID)
	if errors.Is(err, auth.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	perms, err := a.access.Effective(r.Context(), identity.ID, identity.RoleID)
	if err != nil {
		handleAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     identity.ID,
		"role_id":     identity.RoleID,
		"permissions": perms,
	})
}

func handleAccessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrUnknownModule):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	}
}
