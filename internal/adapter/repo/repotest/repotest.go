// Package repotest opens throwaway SQLite stores for tests.
package repotest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo"
)

// New returns a migrated in-memory store that is closed with the test.
// One connection keeps the in-memory database alive and serializes writers.
func New(t testing.TB) *repo.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := repo.NewStore(db, repo.DriverSQLite)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}
