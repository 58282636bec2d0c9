package auth

import (
	"context"
	"testing"
	"time"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
		TokenTTL:      time.Minute,
	})

	token, expiresIn, err := issuer.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != 60 {
		t.Fatalf("expected 60 second expiry, got %d", expiresIn)
	}

	subject, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if subject != "user-123" {
		t.Fatalf("expected subject user-123, got %s", subject)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	current := time.Unix(1700000000, 0).UTC()
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return current },
	})

	token, _, err := issuer.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestValidateRejectsForeignToken(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
	})
	foreign := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("other-signing-secret"),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
	})

	token, _, err := foreign.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected token signed with a different secret to be rejected")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
	})
	if _, _, err := issuer.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected empty subject to be rejected")
	}
}
