package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doJSON(t *testing.T, h http.Handler, method, path, body string, prep func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if prep != nil {
		prep(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func TestLoginHandlerSetsCookieAndReturnsSession(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nurse@clinic.test","password":"correct horse"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	cookie := refreshCookie(t, rec)
	if cookie.Value == "" || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("cookie not hardened: %+v", cookie)
	}
	if cookie.Path != refreshCookiePath {
		t.Fatalf("cookie path = %q, want %q", cookie.Path, refreshCookiePath)
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie samesite = %v, want strict", cookie.SameSite)
	}

	var payload struct {
		AccessToken string            `json:"access_token"`
		Permissions map[string]string `json:"permissions"`
		Identity    struct {
			ID string `json:"id"`
		} `json:"identity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatal("missing access token")
	}
	if payload.Identity.ID != "user-1" {
		t.Fatalf("identity id = %q", payload.Identity.ID)
	}
	if payload.Permissions["patients"] != "write" || payload.Permissions["admin"] != "none" {
		t.Fatalf("unexpected permissions: %v", payload.Permissions)
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Fatal("response leaks the password hash")
	}
}

func TestLoginHandlerBadCredentials(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nurse@clinic.test","password":"wrong"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginHandlerLockout(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	for i := 0; i < 3; i++ {
		doJSON(t, h, http.MethodPost, "/v1/auth/login",
			`{"email":"nurse@clinic.test","password":"wrong"}`, nil)
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nurse@clinic.test","password":"correct horse"}`, nil)
	if rec.Code != http.StatusLocked {
		t.Fatalf("status = %d, want 423", rec.Code)
	}
	var payload struct {
		RetryAfterMinutes int `json:"retry_after_minutes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.RetryAfterMinutes < 1 || payload.RetryAfterMinutes > 15 {
		t.Fatalf("retry_after_minutes = %d", payload.RetryAfterMinutes)
	}
}

func TestRefreshHandlerRotatesCookie(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	login := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nurse@clinic.test","password":"correct horse"}`, nil)
	first := refreshCookie(t, login)

	refresh := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: first.Value})
	})
	if refresh.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", refresh.Code, refresh.Body.String())
	}
	second := refreshCookie(t, refresh)
	if second.Value == first.Value {
		t.Fatal("refresh cookie was not rotated")
	}

	// Replaying the first cookie must fail and clear the cookie.
	replay := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: first.Value})
	})
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", replay.Code)
	}
	cleared := refreshCookie(t, replay)
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}
}

func TestRefreshHandlerIssuesSuccessorWhenResolutionFails(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	login := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nurse@clinic.test","password":"correct horse"}`, nil)
	first := refreshCookie(t, login)

	// Force the next Effective call past the cache and into the failing
	// store. Rotation has already revoked the presented token by then, so
	// the 503 must still carry the successor cookie.
	ta.access.failReads(errors.New("permission store down"))
	ta.cache.Bump()

	refresh := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: first.Value})
	})
	if refresh.Code != http.StatusServiceUnavailable {
		t.Fatalf("refresh status = %d, want 503", refresh.Code)
	}
	successor := refreshCookie(t, refresh)
	if successor.Value == "" || successor.Value == first.Value {
		t.Fatalf("expected a rotated successor cookie, got %+v", successor)
	}
	if successor.MaxAge <= 0 {
		t.Fatalf("successor cookie not live: MaxAge = %d", successor.MaxAge)
	}

	// Once the store recovers the successor must work without a re-login.
	ta.access.failReads(nil)
	retry := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: successor.Value})
	})
	if retry.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", retry.Code, retry.Body.String())
	}
}

func TestRefreshHandlerWithoutCookie(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLogoutHandlerClearsCookie(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	login := doJSON(t, h, http.MethodPost, "/v1/auth/login",
		`{"email":"nurse@clinic.test","password":"correct horse"}`, nil)
	cookie := refreshCookie(t, login)

	logout := doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookie.Value})
	})
	if logout.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", logout.Code)
	}
	cleared := refreshCookie(t, logout)
	if cleared.MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got MaxAge=%d", cleared.MaxAge)
	}

	// The revoked token is dead for refresh.
	refresh := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: cookie.Value})
	})
	if refresh.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", refresh.Code)
	}
}

func TestLoginHandlerMethodNotAllowed(t *testing.T) {
	ta := newTestAPI(t)
	h := ta.api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/auth/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q", allow)
	}
}
