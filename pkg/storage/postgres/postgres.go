// Package postgres provides a PostgreSQL implementation of the tessera
// store interfaces. It uses pgx/v5 for connection pooling and keeps all
// tenant-owned rows in shared tables partitioned by a tenant_id column.
//
// Every query against a tenant-owned table carries an explicit
// tenant_id predicate taken from the scope bound to the context. A
// request whose context holds no active scope cannot touch those
// tables at all.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/storage"
)

// Store is a PostgreSQL-backed store for tenants, users, tokens, and
// widgets.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// boundTenant returns the tenant the context is scoped to, or an error
// for unbound contexts.
func boundTenant(ctx context.Context) (string, error) {
	id := storage.BoundTenantID(ctx)
	if id == "" {
		return "", fmt.Errorf("no tenant scope bound")
	}
	return id, nil
}

// TenantByID looks up a tenant by its identifier. Unscoped.
func (s *Store) TenantByID(ctx context.Context, id string) (*api.Tenant, error) {
	var t api.Tenant
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, partition FROM tenants WHERE id = $1", id,
	).Scan(&t.ID, &t.Name, &t.Partition)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}
	return &t, nil
}

// InsertTenant adds a tenant. Unscoped; used by provisioning.
func (s *Store) InsertTenant(ctx context.Context, t *api.Tenant) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO tenants (id, name, partition) VALUES ($1, $2, $3)",
		t.ID, t.Name, t.Partition,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

// InsertUser adds a user under the bound tenant.
func (s *Store) InsertUser(ctx context.Context, u *api.User) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, tenant_id, name, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, tenantID, u.Name, u.PasswordHash, u.Roles, u.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// UserByID retrieves a user within the bound tenant.
func (s *Store) UserByID(ctx context.Context, id string) (*api.User, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}
	return s.queryUser(ctx,
		"SELECT id, tenant_id, name, password_hash, roles, created_at FROM users WHERE id = $1 AND tenant_id = $2",
		id, tenantID,
	)
}

// UserByName retrieves a user by name within the bound tenant.
func (s *Store) UserByName(ctx context.Context, name string) (*api.User, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}
	return s.queryUser(ctx,
		"SELECT id, tenant_id, name, password_hash, roles, created_at FROM users WHERE name = $1 AND tenant_id = $2",
		name, tenantID,
	)
}

func (s *Store) queryUser(ctx context.Context, query string, args ...any) (*api.User, error) {
	var u api.User
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.TenantID, &u.Name, &u.PasswordHash, &u.Roles, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// ListUsers returns the bound tenant's users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*api.User, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, tenant_id, name, password_hash, roles, created_at FROM users WHERE tenant_id = $1 ORDER BY name",
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var out []*api.User
	for rows.Next() {
		var u api.User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Name, &u.PasswordHash, &u.Roles, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// UserByToken resolves a token value to its owning user within the
// bound tenant. The join filters both tables by tenant_id so a value
// issued under another tenant never resolves here, even if the strings
// collide.
func (s *Store) UserByToken(ctx context.Context, value string) (*api.User, *api.Token, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, nil, err
	}

	var u api.User
	var t api.Token
	err = s.pool.QueryRow(ctx, `
		SELECT u.id, u.tenant_id, u.name, u.password_hash, u.roles, u.created_at,
		       t.value, t.user_id, t.tenant_id, t.issued_at, t.expires_at
		FROM tokens t
		JOIN users u ON u.id = t.user_id AND u.tenant_id = t.tenant_id
		WHERE t.value = $1 AND t.tenant_id = $2
	`, value, tenantID).Scan(
		&u.ID, &u.TenantID, &u.Name, &u.PasswordHash, &u.Roles, &u.CreatedAt,
		&t.Value, &t.UserID, &t.TenantID, &t.IssuedAt, &t.ExpiresAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying token: %w", err)
	}
	return &u, &t, nil
}

// InsertToken persists a token under the bound tenant.
func (s *Store) InsertToken(ctx context.Context, tok *api.Token) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tokens (value, user_id, tenant_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, tok.Value, tok.UserID, tenantID, tok.IssuedAt, tok.ExpiresAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

// RevokeToken deletes a token by value within the bound tenant.
func (s *Store) RevokeToken(ctx context.Context, value string) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	result, err := s.pool.Exec(ctx,
		"DELETE FROM tokens WHERE value = $1 AND tenant_id = $2",
		value, tenantID,
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertWidget adds a widget under the bound tenant.
func (s *Store) InsertWidget(ctx context.Context, w *api.Widget) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO widgets (id, tenant_id, name, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, tenantID, w.Name, w.Notes, w.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting widget: %w", err)
	}
	return nil
}

// WidgetByID retrieves a widget within the bound tenant.
func (s *Store) WidgetByID(ctx context.Context, id string) (*api.Widget, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	var w api.Widget
	err = s.pool.QueryRow(ctx,
		"SELECT id, tenant_id, name, notes, created_at FROM widgets WHERE id = $1 AND tenant_id = $2",
		id, tenantID,
	).Scan(&w.ID, &w.TenantID, &w.Name, &w.Notes, &w.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying widget: %w", err)
	}
	return &w, nil
}

// ListWidgets returns the bound tenant's widgets, newest first.
func (s *Store) ListWidgets(ctx context.Context) ([]*api.Widget, error) {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT id, tenant_id, name, notes, created_at FROM widgets WHERE tenant_id = $1 ORDER BY created_at DESC, id",
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying widgets: %w", err)
	}
	defer rows.Close()

	var out []*api.Widget
	for rows.Next() {
		var w api.Widget
		if err := rows.Scan(&w.ID, &w.TenantID, &w.Name, &w.Notes, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning widget: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// DeleteWidget removes a widget within the bound tenant.
func (s *Store) DeleteWidget(ctx context.Context, id string) error {
	tenantID, err := boundTenant(ctx)
	if err != nil {
		return err
	}

	result, err := s.pool.Exec(ctx,
		"DELETE FROM widgets WHERE id = $1 AND tenant_id = $2",
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("deleting widget: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
