package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/connectmesh-bridge/migrations"
)

// newTestRepo opens a migrated SQLite database and returns a repository
// backed by it.
func newTestRepo(t *testing.T) *SQLiteRepository {
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
	return NewSQLiteRepository(db.DB)
}

// TestCreateGeneratesIDAndTimestamp verifies ID and CreatedAt are
// filled in and details survive the JSON round-trip.
func TestCreateGeneratesIDAndTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	log := &AuditLog{
		Action:     ActionCommand,
		EntityType: "device",
		EntityID:   "uid-1",
		UserID:     "operator",
		Source:     "api",
		Details:    map[string]any{"operation": "set power", "power": "on"},
	}
	if err := repo.Create(ctx, log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(log.ID, "aud-") {
		t.Errorf("generated ID = %q, want aud- prefix", log.ID)
	}
	if log.CreatedAt.IsZero() {
		t.Error("CreatedAt not generated")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Logs) != 1 {
		t.Fatalf("List() total = %d, logs = %d", result.Total, len(result.Logs))
	}

	got := result.Logs[0]
	if got.Action != ActionCommand || got.EntityID != "uid-1" || got.UserID != "operator" {
		t.Errorf("List() log = %+v", got)
	}
	if got.Details["operation"] != "set power" || got.Details["power"] != "on" {
		t.Errorf("Details = %v", got.Details)
	}
}

// TestListFilters verifies action and entity filtering with pagination.
func TestListFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []*AuditLog{
		{Action: ActionLogin, EntityType: "auth", Source: "api", CreatedAt: base},
		{Action: ActionCommand, EntityType: "device", EntityID: "uid-1", Source: "mqtt", CreatedAt: base.Add(time.Minute)},
		{Action: ActionCommand, EntityType: "device", EntityID: "uid-2", Source: "api", CreatedAt: base.Add(2 * time.Minute)},
		{Action: ActionSceneRecall, EntityType: "scene", EntityID: "scn-1", Source: "api", CreatedAt: base.Add(3 * time.Minute)},
		{Action: ActionImport, EntityType: "export", EntityID: "exp-1", Source: "api", CreatedAt: base.Add(4 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	t.Run("by action", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Action: ActionCommand})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
		// Most recent first.
		if result.Logs[0].EntityID != "uid-2" {
			t.Errorf("Logs[0].EntityID = %q, want uid-2", result.Logs[0].EntityID)
		}
	})

	t.Run("by entity", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{EntityType: "device", EntityID: "uid-1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 1 || result.Logs[0].Source != "mqtt" {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 5 {
			t.Errorf("Total = %d, want 5", result.Total)
		}
		if len(result.Logs) != 2 {
			t.Errorf("page size = %d, want 2", len(result.Logs))
		}
		if result.Logs[0].Action != ActionCommand {
			t.Errorf("Logs[0].Action = %q, want %q", result.Logs[0].Action, ActionCommand)
		}
	})

	t.Run("empty page", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Offset: 50})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(result.Logs) != 0 {
			t.Errorf("page size = %d, want 0", len(result.Logs))
		}
	})
}
