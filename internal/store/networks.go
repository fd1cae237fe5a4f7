package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NetworkRow is the persisted snapshot of one cloud network.
type NetworkRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DeviceCount int       `json:"device_count"`
	GroupCount  int       `json:"group_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NetworkRepository reads and writes network snapshot rows.
type NetworkRepository struct {
	db *sql.DB
}

// NewNetworkRepository creates a network snapshot repository.
func NewNetworkRepository(db *sql.DB) *NetworkRepository {
	return &NetworkRepository{db: db}
}

// Upsert inserts or replaces a network row. UpdatedAt is set to the
// current time if zero.
func (r *NetworkRepository) Upsert(ctx context.Context, row *NetworkRow) error {
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO networks (id, name, device_count, group_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   device_count = excluded.device_count,
		   group_count = excluded.group_count,
		   updated_at = excluded.updated_at`,
		row.ID, row.Name, row.DeviceCount, row.GroupCount,
		row.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting network %s: %w", row.ID, err)
	}
	return nil
}

// Get returns one network row.
// Returns ErrNotFound if the network does not exist.
func (r *NetworkRepository) Get(ctx context.Context, id string) (*NetworkRow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, device_count, group_count, updated_at
		 FROM networks WHERE id = ?`, id)

	var n NetworkRow
	var updatedAt string
	if err := row.Scan(&n.ID, &n.Name, &n.DeviceCount, &n.GroupCount, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying network %s: %w", id, err)
	}

	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing network timestamp %q: %w", updatedAt, err)
	}
	n.UpdatedAt = t
	return &n, nil
}

// List returns all network rows ordered by name.
func (r *NetworkRepository) List(ctx context.Context) ([]NetworkRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, device_count, group_count, updated_at
		 FROM networks ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying networks: %w", err)
	}
	defer rows.Close()

	networks := []NetworkRow{}
	for rows.Next() {
		var n NetworkRow
		var updatedAt string
		if err := rows.Scan(&n.ID, &n.Name, &n.DeviceCount, &n.GroupCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning network: %w", err)
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing network timestamp %q: %w", updatedAt, err)
		}
		n.UpdatedAt = t
		networks = append(networks, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating networks: %w", err)
	}
	return networks, nil
}

// Delete removes a network row. Device rows cascade.
// Returns ErrNotFound if the network does not exist.
func (r *NetworkRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting network %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
