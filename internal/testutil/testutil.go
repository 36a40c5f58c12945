// Package testutil provides shared test helpers for setting up vaults
// and state databases.
package testutil

import (
	"os"
	"testing"

	"github.com/kallestad/driftmark/internal/localstore"
)

// TestDB creates a temporary SQLite state database that is
// automatically cleaned up.
func TestDB(t *testing.T) *localstore.StateDB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "driftmark-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := localstore.OpenState(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory.
func TestVault(t *testing.T) (string, *localstore.Vault) {
	t.Helper()
	dir := t.TempDir()
	vault, err := localstore.NewVault(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, vault
}

// TestStore creates a full local store backed by a temporary vault and
// state database.
func TestStore(t *testing.T) *localstore.Store {
	t.Helper()
	_, vault := TestVault(t)
	return localstore.NewStore(vault, TestDB(t))
}
