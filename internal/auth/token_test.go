package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTIssuerRoundTrip(t *testing.T) {
	issuer := NewJWTIssuer("test-secret", time.Minute)

	token, expiresAt, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}
	if remaining := time.Until(expiresAt); remaining < 50*time.Second || remaining > time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	sub, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "user-123" {
		t.Fatalf("expected subject user-123, got %q", sub)
	}
}

func TestJWTIssuerRequiresSubject(t *testing.T) {
	issuer := NewJWTIssuer("test-secret", time.Minute)
	if _, _, err := issuer.Issue(""); err == nil {
		t.Fatal("expected an error for empty user id")
	}
}

func TestJWTIssuerRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTIssuer("test-secret", time.Minute)
	other := NewJWTIssuer("other-secret", time.Minute)

	token, _, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTIssuerRejectsExpiredToken(t *testing.T) {
	issuer := NewJWTIssuer("test-secret", time.Minute)
	issuer.NowFunc = func() time.Time { return time.Now().Add(-2 * time.Minute) }

	token, _, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	issuer.NowFunc = nil
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestJWTIssuerRejectsGarbage(t *testing.T) {
	issuer := NewJWTIssuer("test-secret", time.Minute)
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}
