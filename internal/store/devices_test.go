package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/device"
)

// snapshotDevice builds a minimal domain device for snapshot tests.
func snapshotDevice(uniqueID, networkID, name string) *device.Device {
	return &device.Device{
		ID:        uniqueID,
		UniqueID:  uniqueID,
		NetworkID: networkID,
		Name:      name,
		Type:      device.TypeLEDWhite,
	}
}

// TestDeviceRepositoryUpsertAndGet verifies the snapshot round-trip
// including serialised state and nullable columns.
func TestDeviceRepositoryUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db.DB)
	ctx := context.Background()

	seedNetwork(t, db, "net-1", "Kitchen")

	lightness := 40000
	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := snapshotDevice("uid-1", "net-1", "Pantry")
	d.Type = device.TypeLEDMultiwhiteSpot
	d.BLEAddress = "AA:BB:CC:DD:EE:FF"
	d.BootloaderVersion = "3.2.1"
	d.State = &device.State{Power: true, Lightness: &lightness, UpdatedAt: seen}

	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Pantry" || got.Type != device.TypeLEDMultiwhiteSpot {
		t.Errorf("Get() = %+v", got)
	}
	if got.BLEAddress != "AA:BB:CC:DD:EE:FF" || got.BootloaderVersion != "3.2.1" {
		t.Errorf("nullable columns = %q, %q", got.BLEAddress, got.BootloaderVersion)
	}
	if got.State == nil || !got.State.Power || *got.State.Lightness != 40000 {
		t.Errorf("State = %+v", got.State)
	}
	if !got.State.UpdatedAt.Equal(seen) {
		t.Errorf("State.UpdatedAt = %v, want %v", got.State.UpdatedAt, seen)
	}
	if !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

// TestDeviceRepositoryNilState verifies devices without polled state
// come back with nil state rather than a zero value.
func TestDeviceRepositoryNilState(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db.DB)
	ctx := context.Background()

	seedNetwork(t, db, "net-1", "Kitchen")
	if err := repo.Upsert(ctx, snapshotDevice("uid-1", "net-1", "Pantry")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != nil {
		t.Errorf("State = %+v, want nil", got.State)
	}
	if got.BLEAddress != "" {
		t.Errorf("BLEAddress = %q, want empty", got.BLEAddress)
	}
}

// TestDeviceRepositoryReplaceNetwork verifies wholesale snapshot
// replacement removes stale rows.
func TestDeviceRepositoryReplaceNetwork(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db.DB)
	ctx := context.Background()

	seedNetwork(t, db, "net-1", "Kitchen")
	for _, id := range []string{"uid-1", "uid-2", "uid-3"} {
		if err := repo.Upsert(ctx, snapshotDevice(id, "net-1", "Device "+id)); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}

	replacement := []*device.Device{
		snapshotDevice("uid-2", "net-1", "Kept"),
		snapshotDevice("uid-4", "net-1", "New"),
	}
	if err := repo.ReplaceNetwork(ctx, "net-1", replacement); err != nil {
		t.Fatalf("ReplaceNetwork() error = %v", err)
	}

	devices, err := repo.ListByNetwork(ctx, "net-1")
	if err != nil {
		t.Fatalf("ListByNetwork() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("ListByNetwork() returned %d rows, want 2", len(devices))
	}
	if _, err := repo.Get(ctx, "uid-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale device still present after replace")
	}
}

// TestDeviceRepositoryListByNetwork verifies the network filter and
// name ordering.
func TestDeviceRepositoryListByNetwork(t *testing.T) {
	db := newTestDB(t)
	repo := NewDeviceRepository(db.DB)
	ctx := context.Background()

	seedNetwork(t, db, "net-1", "Kitchen")
	seedNetwork(t, db, "net-2", "Workshop")

	if err := repo.Upsert(ctx, snapshotDevice("uid-1", "net-1", "Zed")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, snapshotDevice("uid-2", "net-1", "Alpha")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, snapshotDevice("uid-3", "net-2", "Other")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	devices, err := repo.ListByNetwork(ctx, "net-1")
	if err != nil {
		t.Fatalf("ListByNetwork() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("ListByNetwork() returned %d rows, want 2", len(devices))
	}
	if devices[0].Name != "Alpha" || devices[1].Name != "Zed" {
		t.Errorf("order = %q, %q", devices[0].Name, devices[1].Name)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d rows, want 3", len(all))
	}
}
