package api

import "time"

// Tenant is an isolated customer partition of data within a shared
// deployment. Tenants are immutable after creation: the gateway looks
// them up but never mutates them.
type Tenant struct {
	// ID uniquely identifies the tenant (e.g. "acme").
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Partition describes which data partition the tenant's rows live
	// in (schema name or shard key, depending on the storage backend).
	Partition string `json:"partition"`
}

// User belongs to exactly one tenant. Deleting a tenant logically
// orphans its users; cascading is a storage-administration concern.
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Token is an opaque random bearer credential. It carries no embedded
// structure and is validated only by store lookup within the tenant it
// was issued under.
type Token struct {
	// Value is the opaque token string, unique across the store.
	Value string `json:"-"`

	UserID   string    `json:"user_id"`
	TenantID string    `json:"tenant_id"`
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt overrides the configured validity window when set.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token is no longer valid at the given
// instant. validity is the configured window measured from IssuedAt;
// a zero validity means tokens never age out. An explicit ExpiresAt
// takes precedence over the window.
func (t *Token) Expired(now time.Time, validity time.Duration) bool {
	if t.ExpiresAt != nil {
		return !now.Before(*t.ExpiresAt)
	}
	if validity <= 0 {
		return false
	}
	return !now.Before(t.IssuedAt.Add(validity))
}

// Principal is the authenticated identity attached to a request after
// successful authentication. It is immutable once handler dispatch
// begins.
type Principal struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

// HasAnyRole reports whether the principal's role set intersects the
// required set. An empty requirement is satisfied by any principal.
func (p *Principal) HasAnyRole(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Widget is the business entity served by the widget resource. It
// exists mainly to prove tenant scoping end to end; its schema is
// deliberately small.
type Widget struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
