package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-io/tessera/pkg/api"
	"github.com/tessera-io/tessera/pkg/auth"
	"github.com/tessera-io/tessera/pkg/storage"
)

// seedFile describes the YAML layout of a seed file: tenants with their
// initial users. Passwords are plaintext in the file and hashed before
// storage, so seed files are for development and bootstrap only.
type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Partition string     `yaml:"partition"`
	Users     []seedUser `yaml:"users"`
}

type seedUser struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

// seedFromFile loads tenants and users from a YAML file into the store.
// Records that already exist are left untouched.
func seedFromFile(ctx context.Context, st store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}

	for _, tn := range seed.Tenants {
		if tn.ID == "" {
			return fmt.Errorf("seed tenant without id")
		}

		t := &api.Tenant{ID: tn.ID, Name: tn.Name, Partition: tn.Partition}
		err := st.InsertTenant(ctx, t)
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("seeding tenant %s: %w", tn.ID, err)
		}

		if err := seedUsers(ctx, st, t, tn.Users); err != nil {
			return err
		}
		slog.Info("seeded tenant", "tenant", tn.ID, "users", len(tn.Users))
	}

	return nil
}

func seedUsers(ctx context.Context, st store, t *api.Tenant, users []seedUser) error {
	if len(users) == 0 {
		return nil
	}

	// User records live behind the tenant scope.
	scopedCtx, scope, err := storage.Bind(ctx, t)
	if err != nil {
		return fmt.Errorf("binding scope for %s: %w", t.ID, err)
	}
	defer scope.Release()

	for _, su := range users {
		if su.Name == "" || su.Password == "" {
			return fmt.Errorf("seed user in tenant %s needs name and password", t.ID)
		}

		// Existing users keep their current record.
		if _, err := st.UserByName(scopedCtx, su.Name); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("checking user %s: %w", su.Name, err)
		}

		hash, err := auth.HashPassword(su.Password)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", su.Name, err)
		}

		id := su.ID
		if id == "" {
			id = api.NewUserID()
		}

		err = st.InsertUser(scopedCtx, &api.User{
			ID:           id,
			TenantID:     t.ID,
			Name:         su.Name,
			PasswordHash: hash,
			Roles:        su.Roles,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil && !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("seeding user %s: %w", su.Name, err)
		}
	}

	return nil
}
