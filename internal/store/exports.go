package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExportRecord is one imported mesh export document plus the metadata
// recorded at import time. Document is omitted in listings.
type ExportRecord struct {
	ID           string          `json:"id"`
	MeshUUID     string          `json:"mesh_uuid"`
	MeshName     string          `json:"mesh_name"`
	Version      string          `json:"version"`
	Partial      bool            `json:"partial"`
	Document     json.RawMessage `json:"document,omitempty"`
	WarningCount int             `json:"warning_count"`
	ImportedAt   time.Time       `json:"imported_at"`
}

// ExportRepository reads and writes imported export records.
type ExportRepository struct {
	db *sql.DB
}

// NewExportRepository creates an export repository.
func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Save inserts a new export record. The ID and ImportedAt are generated
// if empty.
func (r *ExportRepository) Save(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		rec.ID = "exp-" + uuid.NewString()[:8]
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exports (id, mesh_uuid, mesh_name, version, partial, document, warning_count, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MeshUUID, rec.MeshName, rec.Version,
		boolToInt(rec.Partial), string(rec.Document), rec.WarningCount,
		rec.ImportedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting export %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns one export record including its document.
// Returns ErrNotFound if the record does not exist.
func (r *ExportRepository) Get(ctx context.Context, id string) (*ExportRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, mesh_uuid, mesh_name, version, partial, document, warning_count, imported_at
		 FROM exports WHERE id = ?`, id)

	var rec ExportRecord
	var partial int
	var document, importedAt string
	if err := row.Scan(&rec.ID, &rec.MeshUUID, &rec.MeshName, &rec.Version,
		&partial, &document, &rec.WarningCount, &importedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying export %s: %w", id, err)
	}

	rec.Partial = partial != 0
	rec.Document = json.RawMessage(document)
	t, err := time.Parse(time.RFC3339, importedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing export timestamp %q: %w", importedAt, err)
	}
	rec.ImportedAt = t
	return &rec, nil
}

// List returns export metadata ordered by most recent first. Documents
// are not loaded; fetch a single record for the full payload.
func (r *ExportRepository) List(ctx context.Context) ([]ExportRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, mesh_uuid, mesh_name, version, partial, warning_count, imported_at
		 FROM exports ORDER BY imported_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying exports: %w", err)
	}
	defer rows.Close()

	records := []ExportRecord{}
	for rows.Next() {
		var rec ExportRecord
		var partial int
		var importedAt string
		if err := rows.Scan(&rec.ID, &rec.MeshUUID, &rec.MeshName, &rec.Version,
			&partial, &rec.WarningCount, &importedAt); err != nil {
			return nil, fmt.Errorf("scanning export: %w", err)
		}
		rec.Partial = partial != 0
		t, err := time.Parse(time.RFC3339, importedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing export timestamp %q: %w", importedAt, err)
		}
		rec.ImportedAt = t
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exports: %w", err)
	}
	return records, nil
}

// Delete removes an export record.
// Returns ErrNotFound if the record does not exist.
func (r *ExportRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM exports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting export %s: %w", id, err)
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
