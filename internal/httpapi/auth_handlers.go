package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"clinika.org/internal/access"
	"clinika.org/internal/audit"
	"clinika.org/internal/auth"
)

const (
	refreshCookieName = "clinika_refresh"
	refreshCookiePath = "/v1/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken     string               `json:"access_token"`
	AccessExpiresAt time.Time            `json:"access_expires_at"`
	Identity        *auth.Identity       `json:"identity"`
	Permissions     access.PermissionSet `json:"permissions"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := a.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		a.handleSessionError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"identity_id": session.Identity.ID,
		"tenant_id":   session.Identity.TenantID,
		"client_ip":   clientIP(r),
	})
	a.writeSession(w, r, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}

	session, err := a.auth.Refresh(r.Context(), cookie.Value, clientIP(r))
	if err != nil {
		// A dead cookie is useless to the client: clear it along with
		// the error so the browser stops re-sending it.
		if errors.Is(err, auth.ErrInvalidRefreshToken) || errors.Is(err, auth.ErrAccountInactive) {
			a.clearRefreshCookie(w)
		}
		a.handleSessionError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", map[string]any{
		"identity_id": session.Identity.ID,
		"client_ip":   clientIP(r),
	})
	a.writeSession(w, r, session)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		// Best effort: an already-dead token still logs the client out.
		if err := a.auth.Logout(r.Context(), cookie.Value); err != nil && !errors.Is(err, auth.ErrInvalidRefreshToken) {
			writeError(w, r, http.StatusServiceUnavailable, "logout failed")
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
			"client_ip": clientIP(r),
		})
	}
	a.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// writeSession sets the rotated refresh cookie and returns the access token
// with the identity's resolved permission set. The cookie is set before
// permission resolution: the predecessor token is already revoked at this
// point, so even an error response must carry the successor or the client is
// left with no usable token.
func (a *API) writeSession(w http.ResponseWriter, r *http.Request, session auth.Session) {
	a.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	perms, err := a.access.Effective(r.Context(), session.Identity.ID, session.Identity.RoleID)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "permission resolution failed")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:     session.AccessToken,
		AccessExpiresAt: session.AccessExpiresAt,
		Identity:        session.Identity,
		Permissions:     perms,
	})
}

func (a *API) handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *auth.LockedError
	switch {
	case errors.As(err, &locked):
		minutes := locked.RemainingMinutes(time.Now())
		writeJSON(w, http.StatusLocked, map[string]any{
			"error":               "account is temporarily locked",
			"retry_after_minutes": minutes,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
	case errors.Is(err, auth.ErrAccountInactive):
		writeError(w, r, http.StatusForbidden, "account is inactive")
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
