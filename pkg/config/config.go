// Package config provides unified configuration for the tessera gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TESSERA_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the tessera gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Tenant        TenantConfig        `yaml:"tenant"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 60s
}

// StorageConfig holds state management settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`

	// SeedFile optionally points at a YAML file with tenants and users
	// to load on startup. Mainly for the memory store and local
	// development.
	SeedFile string `yaml:"seed_file"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"` // default: 25
	MinConns       int32  `yaml:"min_conns"` // default: 5
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// TenantConfig holds tenant directory settings.
type TenantConfig struct {
	// CacheTTL bounds how long a resolved tenant is served from the
	// in-process cache. Zero disables the cache.
	CacheTTL time.Duration `yaml:"cache_ttl"` // default: 30s
	Redis    RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the optional shared directory cache settings.
type RedisConfig struct {
	URL     string        `yaml:"url"`      // e.g. redis://localhost:6379/0
	URLFile string        `yaml:"url_file"` // _file variant for url
	TTL     time.Duration `yaml:"ttl"`      // default: 5m
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// TokenValidity is the sliding window after which an issued token
	// without an explicit expiry is rejected. Zero means tokens never
	// expire.
	TokenValidity time.Duration `yaml:"token_validity"` // default: 24h
	JWT           JWTConfig     `yaml:"jwt"`
}

// JWTConfig holds settings for the optional JWT authenticator.
// When Enabled, JWT-shaped credentials are verified against the
// issuer's JWKS before the opaque token lookup is consulted.
type JWTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TenantClaim string        `yaml:"tenant_claim"` // default: "tenant_id"
	RolesClaim  string        `yaml:"roles_claim"`  // default: "roles"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
				MinConns: 5,
			},
		},
		Tenant: TenantConfig{
			CacheTTL: 30 * time.Second,
			Redis: RedisConfig{
				TTL: 5 * time.Minute,
			},
		},
		Auth: AuthConfig{
			TokenValidity: 24 * time.Hour,
			JWT: JWTConfig{
				UserClaim:   "sub",
				TenantClaim: "tenant_id",
				RolesClaim:  "roles",
				CacheTTL:    time.Hour,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
