package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/retailops/notifier/internal/contracts"
)

func TestManager_SignAndParse(t *testing.T) {
	m := NewManager("secret-secret", time.Hour)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }

	tok, err := m.Sign("u1", "alice", contracts.RoleAdminGudang)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if claims.Subject != "u1" || claims.Username != "alice" || claims.Role != contracts.RoleAdminGudang {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestManager_ParseExpired(t *testing.T) {
	m := NewManager("secret-secret", time.Second)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	tok, err := m.Sign("u1", "alice", contracts.RoleKasir)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	m.Now = func() time.Time { return now.Add(2 * time.Second) }
	_, err = m.Parse(tok)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestManager_ParseWrongSecret(t *testing.T) {
	signer := NewManager("secret-one", time.Hour)
	tok, err := signer.Sign("u1", "alice", contracts.RoleKasir)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	verifier := NewManager("secret-two", time.Hour)
	if _, err := verifier.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestManager_ParseRequiresRole(t *testing.T) {
	m := NewManager("secret-secret", time.Hour)
	tok, err := m.Sign("u1", "alice", "")
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if _, err := m.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc"); got != "abc" {
		t.Fatalf("unexpected token: %q", got)
	}
	if got := BearerToken("Basic abc"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestAdminToken(t *testing.T) {
	hash, err := HashAdminToken("ops-admin")
	if err != nil {
		t.Fatalf("HashAdminToken error: %v", err)
	}
	if !CheckAdminToken(hash, "ops-admin") {
		t.Fatal("expected matching token to pass")
	}
	if CheckAdminToken(hash, "guess") {
		t.Fatal("expected wrong token to fail")
	}
	if CheckAdminToken("", "ops-admin") {
		t.Fatal("expected empty hash to disable admin access")
	}
}
