// Package auth authenticates callers within a resolved tenant.
//
// The primary credential is an opaque bearer token resolved against the
// tenant's credential store. Authenticators are composed in a chain
// with three-outcome voting, so alternative credential formats (JWT for
// service-to-service calls, see pkg/auth/jwt) can participate without
// the gateway knowing about them.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/storage"
)

// Authentication failure taxonomy. All of these collapse to an opaque
// 401 at the HTTP boundary; the distinction exists for logging, metrics,
// and tests.
var (
	// ErrMissingCredential means no bearer token was presented.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidCredential means the token resolved to no user within
	// the bound tenant.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrExpiredCredential means the token exists but its validity
	// window has passed.
	ErrExpiredCredential = errors.New("expired credential")

	// ErrForbidden means the principal lacks a required role.
	ErrForbidden = errors.New("access denied")
)

// CredentialStore persists opaque tokens and resolves them to users.
// Lookups are scoped to the tenant bound to the context: a token issued
// under tenant A never resolves under tenant B, even if the strings
// collide. Implementations must filter by tenant explicitly rather
// than relying on token entropy.
type CredentialStore interface {
	// UserByToken resolves a token value to its owning user and the
	// token record. Returns storage.ErrNotFound when the value is
	// unknown within the bound tenant.
	UserByToken(ctx context.Context, value string) (*api.User, *api.Token, error)

	// InsertToken persists a freshly issued token.
	InsertToken(ctx context.Context, tok *api.Token) error

	// RevokeToken deletes a token by value within the bound tenant.
	RevokeToken(ctx context.Context, value string) error
}

// Decision represents the three possible outcomes of one authenticator.
type Decision int

const (
	// Yes means the credential is valid. The chain stops and the
	// principal is used.
	Yes Decision = iota

	// No means the credential is present but invalid. The chain stops
	// and the request is rejected.
	No

	// Abstain means this authenticator cannot handle the credential
	// format. The chain continues.
	Abstain
)

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision  Decision
	Principal *api.Principal // populated only when Decision == Yes
	Err       error          // populated only when Decision == No
}

// Authenticator examines a credential within a resolved tenant and
// returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, tenant *api.Tenant, credential string) Result
}

// Chain evaluates authenticators in order using three-outcome voting.
// Authentication is a pure decision over store state: no authenticator
// may mutate anything on success.
type Chain struct {
	// Authenticators are evaluated left to right.
	Authenticators []Authenticator
}

// Authenticate runs the chain. An empty credential is rejected up front
// with ErrMissingCredential; no authenticator (and therefore no store)
// is consulted. Stops on the first Yes or No; if every authenticator
// abstains the credential is treated as invalid.
func (c *Chain) Authenticate(ctx context.Context, tenant *api.Tenant, credential string) (*api.Principal, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, tenant, credential)
		switch result.Decision {
		case Yes:
			if result.Principal == nil {
				return nil, ErrInvalidCredential
			}
			return result.Principal, nil
		case No:
			if result.Err != nil {
				return nil, result.Err
			}
			return nil, ErrInvalidCredential
		}
	}

	return nil, ErrInvalidCredential
}

// TokenAuthenticator validates opaque bearer tokens against the
// tenant's credential store.
type TokenAuthenticator struct {
	store CredentialStore

	// validity is the window after IssuedAt during which a token
	// without an explicit expiry is accepted.
	validity time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewTokenAuthenticator creates a token authenticator with the given
// validity window. A zero window means tokens never age out.
func NewTokenAuthenticator(store CredentialStore, validity time.Duration) *TokenAuthenticator {
	return &TokenAuthenticator{
		store:    store,
		validity: validity,
		now:      time.Now,
	}
}

// Authenticate resolves the token within the bound tenant and builds a
// principal. It never abstains: the opaque token authenticator is the
// terminal voter in the chain.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, tenant *api.Tenant, credential string) Result {
	user, tok, err := a.store.UserByToken(ctx, credential)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Decision: No, Err: ErrInvalidCredential}
	}
	if err != nil {
		return Result{Decision: No, Err: err}
	}

	// Defense in depth: the store already filters by the bound tenant,
	// but a token record pointing at another tenant is never accepted.
	if tok.TenantID != tenant.ID || user.TenantID != tenant.ID {
		return Result{Decision: No, Err: ErrInvalidCredential}
	}

	if tok.Expired(a.now(), a.validity) {
		return Result{Decision: No, Err: ErrExpiredCredential}
	}

	return Result{
		Decision: Yes,
		Principal: &api.Principal{
			UserID:   user.ID,
			TenantID: user.TenantID,
			Roles:    append([]string(nil), user.Roles...),
		},
	}
}

// Authorize checks the principal's role set against a requirement.
// Returns ErrForbidden when the sets do not intersect. An empty
// requirement always passes.
func Authorize(p *api.Principal, required ...string) error {
	if p == nil {
		return ErrForbidden
	}
	if !p.HasAnyRole(required...) {
		return ErrForbidden
	}
	return nil
}
