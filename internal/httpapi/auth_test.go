package httpapi

import (
	"testing"
	"time"

	"mitsys/backend/internal/domain"
)

func TestUnlockRejectsWrongPIN(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "739154")

	if _, err := auth.Unlock(domain.UnlockRequest{PIN: "000000"}); err == nil {
		t.Fatalf("expected wrong pin to fail")
	}
	if _, err := auth.Unlock(domain.UnlockRequest{PIN: ""}); err == nil {
		t.Fatalf("expected empty pin to fail")
	}
}

func TestUnlockIssuesParseableManagerToken(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "739154")

	resp, err := auth.Unlock(domain.UnlockRequest{PIN: "739154"})
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if resp.Role != domain.RoleManager {
		t.Fatalf("role = %s, want %s", resp.Role, domain.RoleManager)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Role != domain.RoleManager {
		t.Fatalf("parsed role = %s", actor.Role)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "739154")

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}
}

func TestTokensFromDifferentSecretsRejected(t *testing.T) {
	authA := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "739154")
	authB := NewAuthManager("ffffffffffffffffffffffffffffffff", time.Hour, "739154")

	resp, err := authA.Unlock(domain.UnlockRequest{PIN: "739154"})
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := authB.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected cross-secret token to fail")
	}
}
