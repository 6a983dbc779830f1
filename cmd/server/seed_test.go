package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tessera-io/tessera/pkg/storage"
	"github.com/tessera-io/tessera/pkg/storage/memory"
)

const testSeed = `
tenants:
  - id: acme
    name: Acme Inc
    partition: shard-1
    users:
      - name: alice
        password: s3cret
        roles: [admin]
      - id: usr_bob
        name: bob
        password: hunter2
        roles: [billing]
  - id: other
    name: Other Corp
`

func TestSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(testSeed), 0o600); err != nil {
		t.Fatalf("writing seed file: %v", err)
	}

	st := memory.NewStore()
	ctx := context.Background()
	if err := seedFromFile(ctx, st, path); err != nil {
		t.Fatalf("seedFromFile failed: %v", err)
	}

	acme, err := st.TenantByID(ctx, "acme")
	if err != nil {
		t.Fatalf("acme not seeded: %v", err)
	}
	if _, err := st.TenantByID(ctx, "other"); err != nil {
		t.Fatalf("other not seeded: %v", err)
	}

	scoped, scope, err := storage.Bind(ctx, acme)
	if err != nil {
		t.Fatalf("binding scope: %v", err)
	}
	defer scope.Release()

	alice, err := st.UserByName(scoped, "alice")
	if err != nil {
		t.Fatalf("alice not seeded: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(alice.PasswordHash), []byte("s3cret")); err != nil {
		t.Error("alice's password hash does not match the seed password")
	}
	if len(alice.Roles) != 1 || alice.Roles[0] != "admin" {
		t.Errorf("alice roles = %v, want [admin]", alice.Roles)
	}

	bob, err := st.UserByName(scoped, "bob")
	if err != nil {
		t.Fatalf("bob not seeded: %v", err)
	}
	if bob.ID != "usr_bob" {
		t.Errorf("bob ID = %q, want the explicit usr_bob", bob.ID)
	}

	// Seeding is idempotent: a second run leaves existing records alone.
	if err := seedFromFile(ctx, st, path); err != nil {
		t.Fatalf("second seedFromFile failed: %v", err)
	}

	got, err := st.UserByName(scoped, "alice")
	if err != nil {
		t.Fatalf("alice missing after reseed: %v", err)
	}
	if got.PasswordHash != alice.PasswordHash {
		t.Error("reseed replaced alice's record")
	}
}

func TestSeedFromFileRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"tenant without id", "tenants:\n  - name: nameless\n"},
		{"user without password", "tenants:\n  - id: acme\n    users:\n      - name: alice\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatalf("writing seed file: %v", err)
			}
			if err := seedFromFile(context.Background(), memory.NewStore(), path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
