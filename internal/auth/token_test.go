package auth

import (
	"testing"
	"time"
)

func tokenTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(newFakeStore(), "token-test-secret", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestTokenRoundTrip(t *testing.T) {
	svc := tokenTestService(t)
	u := &User{ID: "u1", CompanyID: "c1", Email: "a@b.test", Role: RoleManager}

	raw, exp, err := svc.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}
	if !exp.After(time.Now()) {
		t.Fatal("expiry must be in the future")
	}

	claims, err := svc.ParseToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.CompanyID != "c1" || claims.Role != RoleManager {
		t.Fatalf("claims mismatch: %+v", claims)
	}

	sub, ok := svc.TokenSubject(raw)
	if !ok || sub != "u1" {
		t.Fatalf("subject = %q, ok = %v", sub, ok)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := base
	svc := tokenTestService(t,
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return current }))

	raw, _, err := svc.IssueToken(&User{ID: "u1", CompanyID: "c1", Role: RoleStaff})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ParseToken(raw); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	current = base.Add(2 * time.Hour)
	if _, err := svc.ParseToken(raw); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuerSvc := tokenTestService(t)
	raw, _, err := issuerSvc.IssueToken(&User{ID: "u1", CompanyID: "c1", Role: RoleStaff})
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewService(newFakeStore(), "a-different-secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.ParseToken(raw); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc := tokenTestService(t)
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := svc.ParseToken(raw); err == nil {
			t.Fatalf("garbage token %q accepted", raw)
		}
	}
}
