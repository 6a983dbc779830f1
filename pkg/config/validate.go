package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// Durations must not be negative.
	if c.Tenant.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("tenant.cache_ttl must be >= 0, got %s", c.Tenant.CacheTTL))
	}
	if c.Auth.TokenValidity < 0 {
		errs = append(errs, fmt.Errorf("auth.token_validity must be >= 0, got %s", c.Auth.TokenValidity))
	}

	// JWT settings are only required when the authenticator is enabled.
	if c.Auth.JWT.Enabled {
		if c.Auth.JWT.Issuer == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.issuer is required when auth.jwt.enabled is true"))
		}
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.jwt.enabled is true"))
		}
	}

	return errors.Join(errs...)
}
