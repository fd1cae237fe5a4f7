package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/connectmesh-bridge/migrations"
)

// newTestDB opens a migrated SQLite database under a temp directory.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// seedNetwork inserts a network row so device rows satisfy the foreign
// key.
func seedNetwork(t *testing.T, db *database.DB, id, name string) {
	t.Helper()
	repo := NewNetworkRepository(db.DB)
	if err := repo.Upsert(context.Background(), &NetworkRow{
		ID:        id,
		Name:      name,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seeding network %s: %v", id, err)
	}
}
