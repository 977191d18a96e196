// Package accounts handles client sign-up and the credential checks behind
// both login endpoints. Password hashes never leave this package.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"pustak/api/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// CredentialStore is the slice of the data layer accounts needs.
type CredentialStore interface {
	GetClientByEmail(ctx context.Context, email string) (store.Client, error)
	GetClientByID(ctx context.Context, id int64) (store.Client, error)
	CreateClient(ctx context.Context, client store.Client) (store.Client, error)
	GetAdminByUsername(ctx context.Context, username string) (store.Admin, error)
	CreateAdmin(ctx context.Context, admin store.Admin) (store.Admin, error)
	CountAdmins(ctx context.Context) (int, error)
}

type Service struct {
	store CredentialStore
}

func NewService(credStore CredentialStore) *Service {
	return &Service{store: credStore}
}

// SignUpClient registers a new client. The store enforces email uniqueness;
// store.ErrEmailTaken passes through for the handler to map to a conflict.
func (s *Service) SignUpClient(ctx context.Context, name, email, password string) (store.Client, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.Client{}, fmt.Errorf("hash password: %w", err)
	}
	client, err := s.store.CreateClient(ctx, store.Client{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return store.Client{}, err
	}
	return client, nil
}

// AuthenticateClient checks an email/password pair. Unknown email and wrong
// password both come back as ErrInvalidCredentials so the response does not
// reveal which one failed.
func (s *Service) AuthenticateClient(ctx context.Context, email, password string) (store.Client, error) {
	client, err := s.store.GetClientByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.Client{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Client{}, fmt.Errorf("lookup client: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)) != nil {
		return store.Client{}, ErrInvalidCredentials
	}
	return client, nil
}

// AuthenticateAdmin checks an admin username/password pair.
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (store.Admin, error) {
	admin, err := s.store.GetAdminByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return store.Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Admin{}, fmt.Errorf("lookup admin: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return store.Admin{}, ErrInvalidCredentials
	}
	return admin, nil
}

// GetClient loads the client behind an authenticated request.
func (s *Service) GetClient(ctx context.Context, id int64) (store.Client, error) {
	return s.store.GetClientByID(ctx, id)
}

// EnsureAdmin seeds the configured admin account when no admins exist yet, so
// a fresh deployment is manageable without poking the data store by hand.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	count, err := s.store.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := s.store.CreateAdmin(ctx, store.Admin{Username: username, PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
