package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestVerifyRejectsExpiredToken(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, store, func() time.Time { return now })

	identity := &Identity{ID: "user-1", TenantID: "tenant-1", RoleID: "role-1"}
	token, _, err := svc.issueAccessToken(identity, now)
	if err != nil {
		t.Fatalf("issueAccessToken: %v", err)
	}
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("Verify fresh token: %v", err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken for expired token, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	store := newFakeStore()
	svcA := newTestService(t, store, time.Now)
	svcB, err := NewService(store, "other-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	identity := &Identity{ID: "user-1", TenantID: "tenant-1", RoleID: "role-1"}
	token, _, err := svcA.issueAccessToken(identity, time.Now())
	if err != nil {
		t.Fatalf("issueAccessToken: %v", err)
	}
	if _, err := svcB.Verify(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken for foreign signature, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	store := newFakeStore()
	issuing, err := NewService(store, "test-secret", WithIssuer("someone-else"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	verifying := newTestService(t, store, time.Now)

	identity := &Identity{ID: "user-1", TenantID: "tenant-1", RoleID: "role-1"}
	token, _, err := issuing.issueAccessToken(identity, time.Now())
	if err != nil {
		t.Fatalf("issueAccessToken: %v", err)
	}
	if _, err := verifying.Verify(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken for wrong issuer, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, newFakeStore(), time.Now)
	for _, token := range []string{"", "  ", "not.a.jwt", "a.b"} {
		if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidAccessToken) {
			t.Fatalf("Verify(%q): expected ErrInvalidAccessToken, got %v", token, err)
		}
	}
}

func TestNewRefreshTokenShape(t *testing.T) {
	raw, recordID, hash, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken: %v", err)
	}
	if !strings.HasPrefix(raw, recordID+".") {
		t.Fatalf("wire form %q does not start with record id %q", raw, recordID)
	}
	gotID, secret, err := splitRefreshToken(raw)
	if err != nil {
		t.Fatalf("splitRefreshToken: %v", err)
	}
	if gotID != recordID {
		t.Fatalf("split record id = %q, want %q", gotID, recordID)
	}
	if strings.Contains(raw, hash) {
		t.Fatal("hash must not appear in the wire form")
	}
	if !refreshSecretMatches(hash, secret) {
		t.Fatal("stored hash does not match the secret")
	}
	if refreshSecretMatches(hash, secret+"x") {
		t.Fatal("tampered secret must not match")
	}
}

func TestSplitRefreshTokenRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "nodot", ".secret", "id.", "a.b.c"} {
		if _, _, err := splitRefreshToken(raw); err == nil {
			t.Fatalf("splitRefreshToken(%q): expected error", raw)
		}
	}
}
