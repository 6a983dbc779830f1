// Package transport provides the HTTP surface of the tessera backend:
// the resource router, JSON error writing, server lifecycle, and the
// HTTP-level middleware stack (recovery, request IDs, logging).
//
// The router composes the gateway middleware per route group: resource
// endpoints run behind the full authentication pipeline, the login
// endpoint runs behind scope binding only, and health, metrics, and
// static assets bypass the gateway entirely.
package transport
