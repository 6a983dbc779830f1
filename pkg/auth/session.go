package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/storage"
)

// ErrBadLogin is returned for any failed login attempt. Like the token
// taxonomy it is deliberately opaque: callers learn nothing about
// whether the user exists.
var ErrBadLogin = errors.New("invalid name or password")

// UserLookup resolves a user by name within the bound tenant.
// Implementations return storage.ErrNotFound for unknown names.
type UserLookup interface {
	UserByName(ctx context.Context, name string) (*api.User, error)
}

// SessionService issues and revokes opaque bearer tokens. Issuance and
// revocation are the only operations in this package that write to the
// store; token writes are serialized per token value at the storage
// layer.
type SessionService struct {
	users  UserLookup
	tokens CredentialStore
	now    func() time.Time
}

// NewSessionService creates a session service over the given stores.
func NewSessionService(users UserLookup, tokens CredentialStore) *SessionService {
	return &SessionService{users: users, tokens: tokens, now: time.Now}
}

// Login verifies the password for the named user within the bound
// tenant and issues a fresh opaque token.
func (s *SessionService) Login(ctx context.Context, name, password string) (*api.Token, error) {
	tenant := storage.BoundTenant(ctx)
	if tenant == nil {
		return nil, fmt.Errorf("login requires a bound tenant scope")
	}

	user, err := s.users.UserByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		// Burn comparable time so unknown names are not distinguishable
		// by latency.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000uGZwFv3avX0Cy6gGEbouG3EY1WXTBZvS"), []byte(password))
		return nil, ErrBadLogin
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadLogin
	}

	tok := &api.Token{
		Value:    api.NewTokenValue(),
		UserID:   user.ID,
		TenantID: tenant.ID,
		IssuedAt: s.now().UTC(),
	}
	if err := s.tokens.InsertToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("persisting token: %w", err)
	}

	return tok, nil
}

// Logout revokes the presented token. Revoking an unknown token is not
// an error: the end state is the same.
func (s *SessionService) Logout(ctx context.Context, value string) error {
	err := s.tokens.RevokeToken(ctx, value)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// HashPassword produces a bcrypt hash for storage on a user record.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}
