package accounts

import (
	"context"
	"errors"
	"testing"

	"pustak/api/internal/store"
)

func TestSignUpAndAuthenticateClient(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	client, err := s.SignUpClient(ctx, "Asha", "asha@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignUpClient: %v", err)
	}
	if client.ID == 0 {
		t.Fatalf("client id not assigned")
	}
	if client.PasswordHash == "secret123" {
		t.Fatalf("password stored in plain text")
	}

	got, err := s.AuthenticateClient(ctx, "asha@example.com", "secret123")
	if err != nil {
		t.Fatalf("AuthenticateClient: %v", err)
	}
	if got.ID != client.ID {
		t.Fatalf("authenticated wrong client: %d", got.ID)
	}
}

func TestSignUpClientDuplicateEmail(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := s.SignUpClient(ctx, "Asha", "asha@example.com", "secret123"); err != nil {
		t.Fatalf("SignUpClient: %v", err)
	}
	_, err := s.SignUpClient(ctx, "Imposter", "asha@example.com", "other456")
	if !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("duplicate email err = %v", err)
	}
}

func TestAuthenticateClientFailures(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if _, err := s.SignUpClient(ctx, "Asha", "asha@example.com", "secret123"); err != nil {
		t.Fatalf("SignUpClient: %v", err)
	}

	// wrong password and unknown email are indistinguishable
	if _, err := s.AuthenticateClient(ctx, "asha@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := s.AuthenticateClient(ctx, "nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}
}

func TestEnsureAdminSeedsOnce(t *testing.T) {
	mem := store.NewMemoryStore()
	s := NewService(mem)
	ctx := context.Background()

	if err := s.EnsureAdmin(ctx, "admin", "changeme1"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	admin, err := s.AuthenticateAdmin(ctx, "admin", "changeme1")
	if err != nil {
		t.Fatalf("AuthenticateAdmin: %v", err)
	}
	if admin.Username != "admin" {
		t.Fatalf("admin = %+v", admin)
	}

	// second call is a no-op even with a different password
	if err := s.EnsureAdmin(ctx, "admin", "different2"); err != nil {
		t.Fatalf("EnsureAdmin again: %v", err)
	}
	if _, err := s.AuthenticateAdmin(ctx, "admin", "different2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("reseed overwrote admin: %v", err)
	}
	count, _ := mem.CountAdmins(ctx)
	if count != 1 {
		t.Fatalf("admin count = %d", count)
	}
}

func TestEnsureAdminSkipsWhenUnconfigured(t *testing.T) {
	mem := store.NewMemoryStore()
	s := NewService(mem)
	if err := s.EnsureAdmin(context.Background(), "", ""); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	count, _ := mem.CountAdmins(context.Background())
	if count != 0 {
		t.Fatalf("admin seeded without config")
	}
}

func TestAuthenticateAdminWrongPassword(t *testing.T) {
	s := NewService(store.NewMemoryStore())
	ctx := context.Background()

	if err := s.EnsureAdmin(ctx, "admin", "changeme1"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if _, err := s.AuthenticateAdmin(ctx, "admin", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := s.AuthenticateAdmin(ctx, "ghost", "changeme1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown admin err = %v", err)
	}
}
