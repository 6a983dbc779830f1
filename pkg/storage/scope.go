package storage

import (
	"context"
	"sync/atomic"

	"github.com/tessera-io/tessera/pkg/api"
)

// scopeKey is a private type for the scope context key, preventing
// collisions with other packages.
type scopeKey struct{}

// Scope is one request's binding to a tenant partition. It is created
// by Bind, carried in the request context, and released exactly once
// when the request finishes. After release the scope no longer resolves
// a tenant, so a leaked context cannot keep targeting the partition.
//
// Binding does not open a transaction; it only selects which tenant's
// partition subsequent storage calls operate on.
type Scope struct {
	tenant   *api.Tenant
	released atomic.Bool
}

// Tenant returns the bound tenant, or nil once the scope is released.
func (s *Scope) Tenant() *api.Tenant {
	if s == nil || s.released.Load() {
		return nil
	}
	return s.tenant
}

// Active reports whether the scope still holds its binding.
func (s *Scope) Active() bool {
	return s != nil && !s.released.Load()
}

// Release clears the binding. It is idempotent and safe to defer on
// every exit path.
func (s *Scope) Release() {
	if s != nil {
		s.released.Store(true)
	}
}

// Bind derives a context bound to the given tenant's partition and
// returns the scope handle for later release. Rebinding a context that
// already carries an active scope is an error.
func Bind(ctx context.Context, tenant *api.Tenant) (context.Context, *Scope, error) {
	if s, ok := ctx.Value(scopeKey{}).(*Scope); ok && s.Active() {
		return ctx, nil, ErrAlreadyBound
	}
	s := &Scope{tenant: tenant}
	return context.WithValue(ctx, scopeKey{}, s), s, nil
}

// BoundTenant returns the tenant bound to the context, or nil if the
// context carries no active scope.
func BoundTenant(ctx context.Context) *api.Tenant {
	if s, ok := ctx.Value(scopeKey{}).(*Scope); ok {
		return s.Tenant()
	}
	return nil
}

// BoundTenantID returns the bound tenant's ID, or an empty string.
// Storage adapters use this to filter every query by tenant.
func BoundTenantID(ctx context.Context) string {
	if t := BoundTenant(ctx); t != nil {
		return t.ID
	}
	return ""
}
