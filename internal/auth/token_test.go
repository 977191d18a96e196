package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:   7,
		Role:  RoleClient,
		Email: "raj@example.com",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != 7 || claims.Role != RoleClient || claims.Email != "raj@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:  7,
		Role: RoleClient,
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if err == nil {
		t.Fatal("expected ParseToken() to fail for expired token")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issued, err := IssueToken([]byte("secret-a"), Claims{
		Sub:  1,
		Role: RoleAdmin,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("secret-b"), issued); err == nil {
		t.Fatal("expected ParseToken() to fail for mismatched secret")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "abc", "a.b.c", "!!!.###"} {
		if _, err := ParseToken([]byte("secret"), token); err == nil {
			t.Fatalf("expected ParseToken(%q) to fail", token)
		}
	}
}

func TestHasRole(t *testing.T) {
	claims := Claims{Sub: 1, Role: RoleClient, Exp: time.Now().Add(time.Hour).Unix()}
	if !HasRole(claims, RoleClient) {
		t.Fatal("expected client claims to satisfy client role")
	}
	if HasRole(claims, RoleAdmin) {
		t.Fatal("expected client claims to fail admin role")
	}
}
