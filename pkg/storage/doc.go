// Package storage provides utilities shared across storage adapter
// implementations: sentinel errors and the tenant data-scope binder.
//
// Storage adapters (memory, postgres) implement the store interfaces
// defined next to their consumers (pkg/tenant, pkg/auth, pkg/transport).
// This package contains only shared types and helpers, not the
// interfaces themselves.
//
// # Data-scope binding
//
// Every query a storage adapter runs is scoped to the tenant bound to
// the request context via Bind. The binding lives in a context value,
// so it is visible only to the request's own call tree: two concurrent
// requests can never observe each other's tenant, by construction.
// There is no process-global "current tenant" anywhere.
package storage
