package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/device"
)

// DeviceRepository reads and writes last-known device rows. Rows carry
// the listing fields plus serialised state, not the full catalogue; the
// registry holds the live picture while the process runs.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a device snapshot repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert inserts or replaces one device row keyed by unique ID.
func (r *DeviceRepository) Upsert(ctx context.Context, d *device.Device) error {
	stateJSON, err := marshalState(d.State)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO devices (id, network_id, name, device_type, bluetooth_address, firmware_version, state, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   network_id = excluded.network_id,
		   name = excluded.name,
		   device_type = excluded.device_type,
		   bluetooth_address = excluded.bluetooth_address,
		   firmware_version = excluded.firmware_version,
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		d.UniqueID, d.NetworkID, d.Name, string(d.Type),
		nullableString(d.BLEAddress), nullableString(d.BootloaderVersion),
		stateJSON, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.UniqueID, err)
	}
	return nil
}

// ReplaceNetwork replaces all device rows of a network with the given
// snapshot in one transaction. A discovery sweep calls this so devices
// deleted in the cloud disappear from the store too.
func (r *DeviceRepository) ReplaceNetwork(ctx context.Context, networkID string, devices []*device.Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE network_id = ?`, networkID); err != nil {
		return fmt.Errorf("clearing devices for network %s: %w", networkID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range devices {
		stateJSON, err := marshalState(d.State)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO devices (id, network_id, name, device_type, bluetooth_address, firmware_version, state, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.UniqueID, networkID, d.Name, string(d.Type),
			nullableString(d.BLEAddress), nullableString(d.BootloaderVersion),
			stateJSON, now,
		)
		if err != nil {
			return fmt.Errorf("inserting device %s: %w", d.UniqueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device snapshot: %w", err)
	}
	return nil
}

// Get returns one device row reconstructed as a domain device.
// Returns ErrNotFound if the device does not exist.
func (r *DeviceRepository) Get(ctx context.Context, uniqueID string) (*device.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, network_id, name, device_type, bluetooth_address, firmware_version, state, updated_at
		 FROM devices WHERE id = ?`, uniqueID)

	d, err := scanDevice(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", uniqueID, err)
	}
	return d, nil
}

// List returns all device rows ordered by name.
func (r *DeviceRepository) List(ctx context.Context) ([]*device.Device, error) {
	return r.list(ctx,
		`SELECT id, network_id, name, device_type, bluetooth_address, firmware_version, state, updated_at
		 FROM devices ORDER BY name, id`)
}

// ListByNetwork returns the device rows of one network ordered by name.
func (r *DeviceRepository) ListByNetwork(ctx context.Context, networkID string) ([]*device.Device, error) {
	return r.list(ctx,
		`SELECT id, network_id, name, device_type, bluetooth_address, firmware_version, state, updated_at
		 FROM devices WHERE network_id = ? ORDER BY name, id`, networkID)
}

func (r *DeviceRepository) list(ctx context.Context, query string, args ...any) ([]*device.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []*device.Device{}
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// scanDevice reconstructs a domain device from a snapshot row. The
// snapshot keeps listing fields only, so addressing and element data
// stay zero.
func scanDevice(scan func(dest ...any) error) (*device.Device, error) {
	var d device.Device
	var typ, stateJSON, updatedAt string
	var bleAddress, firmware sql.NullString

	if err := scan(&d.UniqueID, &d.NetworkID, &d.Name, &typ, &bleAddress, &firmware, &stateJSON, &updatedAt); err != nil {
		return nil, err
	}

	d.ID = d.UniqueID
	d.Type = device.Type(typ)
	if bleAddress.Valid {
		d.BLEAddress = bleAddress.String
	}
	if firmware.Valid {
		d.BootloaderVersion = firmware.String
	}

	st, err := unmarshalState(stateJSON)
	if err != nil {
		return nil, err
	}
	d.State = st
	if st != nil {
		d.LastSeen = st.UpdatedAt
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing device timestamp %q: %w", updatedAt, err)
	}
	d.UpdatedAt = t
	return &d, nil
}

// marshalState serialises device state for the state column. Nil state
// is stored as the empty object so the column stays NOT NULL.
func marshalState(st *device.State) (string, error) {
	if st == nil {
		return "{}", nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshalling device state: %w", err)
	}
	return string(b), nil
}

func unmarshalState(s string) (*device.State, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var st device.State
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return nil, fmt.Errorf("unmarshalling device state: %w", err)
	}
	return &st, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
