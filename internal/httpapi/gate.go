package httpapi

import (
	"net/http"
	"strings"

	"clinika.org/internal/access"
	"clinika.org/internal/auth"
)

// routeGuard binds a method and path to the module access it requires.
// Prefixes ending in "/" match any deeper path; others match exactly.
type routeGuard struct {
	method string
	path   string
	module string
	min    access.Level
}

var routeGuards = []routeGuard{
	{http.MethodGet, "/v1/modules", access.ModuleAdmin, access.LevelRead},
	{http.MethodGet, "/v1/roles/", access.ModuleAdmin, access.LevelRead},
	{http.MethodPut, "/v1/roles/", access.ModuleAdmin, access.LevelFull},
	{http.MethodGet, "/v1/users/", access.ModuleAdmin, access.LevelRead},
	{http.MethodPut, "/v1/users/", access.ModuleAdmin, access.LevelFull},
	{http.MethodGet, "/v1/patients", access.ModulePatients, access.LevelRead},
	{http.MethodGet, "/v1/patients/", access.ModulePatients, access.LevelRead},
	{http.MethodPost, "/v1/patients", access.ModulePatients, access.LevelWrite},
}

func lookupGuard(method, path string) (routeGuard, bool) {
	for _, g := range routeGuards {
		if g.method != method {
			continue
		}
		if strings.HasSuffix(g.path, "/") {
			if strings.HasPrefix(path, g.path) {
				return g, true
			}
			continue
		}
		if path == g.path {
			return g, true
		}
	}
	return routeGuard{}, false
}

// withAccess enforces the guard table against the caller's effective
// permission set. Resolution failures deny: the gate fails closed.
func (a *API) withAccess(next http.Handler) http.Handler {
	if a == nil || a.access == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guard, ok := lookupGuard(r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		perms, err := a.access.Effective(r.Context(), claims.Subject, claims.RoleID)
		if err != nil {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		if !perms.Level(guard.module).Meets(guard.min) {
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
