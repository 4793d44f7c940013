package security

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordRequiresMinimumLength(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestHashPasswordAndVerify(t *testing.T) {
	password := "care-home-admin-password"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "v1$180000$") {
		t.Fatalf("unexpected hash encoding %q", hash)
	}
	if !VerifyPassword(password, hash) {
		t.Fatalf("expected password verification to succeed")
	}
	if VerifyPassword("wrong-password-entirely", hash) {
		t.Fatalf("expected wrong password verification to fail")
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	for _, encoded := range []string{"", "v1$x$y", "v2$180000$c2FsdA$ZGlnZXN0", "v1$10$c2FsdA$ZGlnZXN0"} {
		if VerifyPassword("anything-at-all", encoded) {
			t.Fatalf("expected %q to be rejected", encoded)
		}
	}
}

func TestNewToken(t *testing.T) {
	a, err := NewToken(32)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	b, err := NewToken(32)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct tokens")
	}
	if len(a) != 43 {
		t.Fatalf("expected 43 characters for 32 bytes, got %d", len(a))
	}
	if _, err := NewToken(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}
