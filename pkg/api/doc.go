// Package api defines the core domain types of the tessera backend:
// tenants, users, opaque bearer tokens, authenticated principals, and
// the widget business entity. It also defines the structured API error
// envelope shared by every HTTP resource.
//
// Types in this package are plain data. Persistence lives in
// pkg/storage, authentication in pkg/auth, and request orchestration in
// pkg/gateway.
package api
