// Package testutil provides shared test helpers for setting up databases and spools.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/starford/fennec/internal/spool"
	"github.com/starford/fennec/internal/store"
)

// TestDB creates a temporary SQLite gateway that is automatically cleaned up.
func TestDB(t testing.TB) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "fennec-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(context.Background(), store.DriverSQLite, dbFile.Name(), store.WithIDFunc(SequentialIDs("id")))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSpool creates a temporary inbox directory with a spool.FS.
func TestSpool(t testing.TB) (string, *spool.FS) {
	t.Helper()
	dir := t.TempDir()
	sp, err := spool.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, sp
}

// SequentialIDs returns a deterministic id generator: prefix-1, prefix-2, ...
func SequentialIDs(prefix string) store.IDFunc {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
