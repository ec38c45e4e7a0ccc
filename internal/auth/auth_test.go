package auth

import (
	"errors"
	"testing"
	"time"
)

func TestServiceDisabled(t *testing.T) {
	service := NewService(Config{})
	if service.Enabled() {
		t.Fatal("expected disabled service")
	}
	if _, err := service.Validate("anything"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}

func TestSharedToken(t *testing.T) {
	service := NewService(Config{SharedToken: "s3cret"})
	if !service.Enabled() {
		t.Fatal("expected enabled service")
	}

	identity, err := service.Validate("s3cret")
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if identity.Subject != "shared-token" {
		t.Fatalf("unexpected subject %q", identity.Subject)
	}

	// Whitespace around the presented token is tolerated.
	if _, err := service.Validate("  s3cret  "); err != nil {
		t.Fatalf("trimmed token rejected: %v", err)
	}

	for _, bad := range []string{"", "wrong", "s3cret2", "S3CRET"} {
		if _, err := service.Validate(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", bad, err)
		}
	}
}

func TestJWTRoundTrip(t *testing.T) {
	service := NewService(Config{JWTSecret: "jwt-secret", TokenExpiry: time.Hour})

	token, err := service.IssueToken("user-1", "Avery")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	identity, err := service.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if identity.Subject != "user-1" || identity.Name != "Avery" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	issuer := NewService(Config{JWTSecret: "secret-a"})
	verifier := NewService(Config{JWTSecret: "secret-b"})

	token, err := issuer.IssueToken("user-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTGarbage(t *testing.T) {
	service := NewService(Config{JWTSecret: "jwt-secret"})
	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := service.Validate(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", bad, err)
		}
	}
}

func TestSharedTokenFallsThroughToJWT(t *testing.T) {
	service := NewService(Config{SharedToken: "static", JWTSecret: "jwt-secret"})

	token, err := service.IssueToken("user-2", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	identity, err := service.Validate(token)
	if err != nil {
		t.Fatalf("jwt rejected despite secret configured: %v", err)
	}
	if identity.Subject != "user-2" {
		t.Fatalf("unexpected subject %q", identity.Subject)
	}

	if _, err := service.Validate("static"); err != nil {
		t.Fatalf("shared token rejected: %v", err)
	}
}

func TestIssueTokenWithoutSecret(t *testing.T) {
	service := NewService(Config{SharedToken: "static"})
	if _, err := service.IssueToken("user", ""); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}
