package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	userID := uuid.New()

	token, err := svc.GenerateToken(userID)
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.ParseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if got != userID {
		t.Errorf("parsed user id = %s, want %s", got, userID)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-a", time.Hour).GenerateToken(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenService("secret-b", time.Hour).ParseToken(token); err == nil {
		t.Fatal("expected verification failure with a different secret")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := NewTokenService("secret", -time.Minute).GenerateToken(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenService("secret", -time.Minute).ParseToken(token); err == nil {
		t.Fatal("expected expired-token failure")
	}
}
