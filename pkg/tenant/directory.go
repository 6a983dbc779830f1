// Package tenant resolves tenant hints to tenant metadata.
//
// The Directory is a read-only lookup: tenant records change rarely, so
// results are safe to cache for a short TTL. Both an in-process TTL
// cache and a Redis-backed cache are provided as decorators; the
// gateway is correct with or without them.
package tenant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/storage"
)

// ErrNotFound is returned when a hint matches no tenant.
var ErrNotFound = errors.New("tenant not found")

// Store is the persistence lookup a directory delegates to.
// Implementations return storage.ErrNotFound for unknown tenants.
type Store interface {
	TenantByID(ctx context.Context, id string) (*api.Tenant, error)
}

// Directory resolves a tenant hint to tenant metadata.
type Directory interface {
	Resolve(ctx context.Context, hint string) (*api.Tenant, error)
}

// StoreDirectory is the plain, uncached directory backed by a Store.
type StoreDirectory struct {
	store Store
}

// NewDirectory creates a store-backed directory.
func NewDirectory(store Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// Resolve looks up the tenant whose ID equals the hint.
func (d *StoreDirectory) Resolve(ctx context.Context, hint string) (*api.Tenant, error) {
	if hint == "" {
		return nil, ErrNotFound
	}
	t, err := d.store.TenantByID(ctx, hint)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// cacheEntry holds a cached tenant and its expiry.
type cacheEntry struct {
	tenant    *api.Tenant
	expiresAt time.Time
}

// CachedDirectory wraps a Directory with an in-process TTL cache.
// Only successful resolutions are cached; misses always fall through,
// so a freshly created tenant becomes visible immediately.
type CachedDirectory struct {
	next Directory
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	// now is replaceable in tests.
	now func() time.Time
}

// NewCachedDirectory wraps next with a TTL cache.
func NewCachedDirectory(next Directory, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Resolve returns a cached tenant when fresh, otherwise delegates.
func (d *CachedDirectory) Resolve(ctx context.Context, hint string) (*api.Tenant, error) {
	d.mu.RLock()
	e, ok := d.entries[hint]
	d.mu.RUnlock()

	if ok && d.now().Before(e.expiresAt) {
		return e.tenant, nil
	}

	t, err := d.next.Resolve(ctx, hint)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.entries[hint] = cacheEntry{tenant: t, expiresAt: d.now().Add(d.ttl)}
	d.mu.Unlock()

	return t, nil
}
