// Package memory provides an in-memory implementation of the tessera
// store interfaces for testing and lightweight deployments. Data is
// lost when the process restarts.
//
// Every tenant-owned read and write requires an active tenant scope on
// the context (see pkg/storage); an unbound context finds nothing and
// writes fail. Only the tenant table itself is unscoped, since it is
// what scopes are resolved from.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/storage"
)

// Store is an in-memory store for tenants, users, tokens, and widgets.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*api.Tenant
	users   map[string]map[string]*api.User   // tenant -> user id -> user
	tokens  map[string]map[string]*api.Token  // tenant -> token value -> token
	widgets map[string]map[string]*api.Widget // tenant -> widget id -> widget
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		tenants: make(map[string]*api.Tenant),
		users:   make(map[string]map[string]*api.User),
		tokens:  make(map[string]map[string]*api.Token),
		widgets: make(map[string]map[string]*api.Widget),
	}
}

// boundTenant returns the tenant the context is scoped to, or an error
// for unbound contexts. Tenant-owned tables are never accessible
// without a scope.
func boundTenant(ctx context.Context) (string, error) {
	id := storage.BoundTenantID(ctx)
	if id == "" {
		return "", fmt.Errorf("no tenant scope bound")
	}
	return id, nil
}

// TenantByID looks up a tenant. Unscoped: tenants are what scopes are
// resolved from.
func (s *Store) TenantByID(_ context.Context, id string) (*api.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// InsertTenant adds a tenant. Unscoped; used by provisioning and tests.
func (s *Store) InsertTenant(_ context.Context, t *api.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return storage.ErrConflict
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

// InsertUser adds a user under the bound tenant.
func (s *Store) InsertUser(ctx context.Context, u *api.User) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.users[tenantID]
	if users == nil {
		users = make(map[string]*api.User)
		s.users[tenantID] = users
	}
	if _, exists := users[u.ID]; exists {
		return storage.ErrConflict
	}

	cp := *u
	cp.TenantID = tenantID
	cp.Roles = append([]string(nil), u.Roles...)
	users[u.ID] = &cp
	return nil
}

// UserByID retrieves a user within the bound tenant.
func (s *Store) UserByID(ctx context.Context, id string) (*api.User, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[tenantID][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(u), nil
}

// UserByName retrieves a user by name within the bound tenant.
func (s *Store) UserByName(ctx context.Context, name string) (*api.User, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users[tenantID] {
		if u.Name == name {
			return copyUser(u), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListUsers returns the bound tenant's users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*api.User, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.User, 0, len(s.users[tenantID]))
	for _, u := range s.users[tenantID] {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UserByToken resolves a token value to its owning user within the
// bound tenant. The tenant filter is explicit: a value issued under
// another tenant is invisible here even if string-equal.
func (s *Store) UserByToken(ctx context.Context, value string) (*api.User, *api.Token, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[tenantID][value]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	u, ok := s.users[tenantID][tok.UserID]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}

	tokCp := *tok
	return copyUser(u), &tokCp, nil
}

// InsertToken persists a token under the bound tenant.
func (s *Store) InsertToken(ctx context.Context, tok *api.Token) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := s.tokens[tenantID]
	if tokens == nil {
		tokens = make(map[string]*api.Token)
		s.tokens[tenantID] = tokens
	}
	if _, exists := tokens[tok.Value]; exists {
		return storage.ErrConflict
	}

	cp := *tok
	cp.TenantID = tenantID
	tokens[tok.Value] = &cp
	return nil
}

// RevokeToken deletes a token by value within the bound tenant.
func (s *Store) RevokeToken(ctx context.Context, value string) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[tenantID][value]; !ok {
		return storage.ErrNotFound
	}
	delete(s.tokens[tenantID], value)
	return nil
}

// InsertWidget adds a widget under the bound tenant.
func (s *Store) InsertWidget(ctx context.Context, w *api.Widget) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	widgets := s.widgets[tenantID]
	if widgets == nil {
		widgets = make(map[string]*api.Widget)
		s.widgets[tenantID] = widgets
	}
	if _, exists := widgets[w.ID]; exists {
		return storage.ErrConflict
	}

	cp := *w
	cp.TenantID = tenantID
	widgets[w.ID] = &cp
	return nil
}

// WidgetByID retrieves a widget within the bound tenant.
func (s *Store) WidgetByID(ctx context.Context, id string) (*api.Widget, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.widgets[tenantID][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// ListWidgets returns the bound tenant's widgets ordered by creation
// time, newest first.
func (s *Store) ListWidgets(ctx context.Context) ([]*api.Widget, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Widget, 0, len(s.widgets[tenantID]))
	for _, w := range s.widgets[tenantID] {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteWidget removes a widget within the bound tenant.
func (s *Store) DeleteWidget(ctx context.Context, id string) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.widgets[tenantID][id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.widgets[tenantID], id)
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func copyUser(u *api.User) *api.User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}
