package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS carries the embedded migration files. The migrations
// package registers its embed.FS here from an init func, which keeps
// this package free of an import cycle while still compiling the SQL
// into the binary.
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS holding the .sql
// files. "." when the files sit at the root of the embedded FS.
var MigrationsDir = "migrations"

// Migration is one schema change, loaded from a pair of
// <version>_<name>.up.sql / .down.sql files. The down half is optional.
type Migration struct {
	// Version orders migrations, format YYYYMMDD_HHMMSS.
	Version string

	// Name is the description part of the filename.
	Name string

	UpSQL   string
	DownSQL string
}

// AppliedMigration is a row of the schema_migrations bookkeeping table.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// Migrate brings the schema up to date, applying every migration not
// yet recorded in schema_migrations, oldest first.
//
// Each migration commits in its own transaction. A failure leaves the
// earlier migrations committed, rolls back only the failing one and
// stops; rerunning Migrate after a fix resumes from that point. The
// failure message names the offending version.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	done, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range all {
		if done[m.Version] {
			continue
		}
		if err := db.applyUp(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the newest applied migration. A development
// and test helper; the service itself only migrates forward.
func (db *DB) MigrateDown(ctx context.Context) error {
	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	newest := applied[len(applied)-1].Version

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	idx := -1
	for i := range all {
		if all[i].Version == newest {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("migration %s not found in filesystem", newest)
	}
	if all[idx].DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", newest)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, all[idx].DownSQL); err != nil {
		return fmt.Errorf("executing down SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", newest); err != nil {
		return fmt.Errorf("removing migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rollback: %w", err)
	}
	return nil
}

// AppliedMigrations lists the schema_migrations rows in version order.
func (db *DB) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			rec AppliedMigration
			at  string
		)
		if err := rows.Scan(&rec.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		rec.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by applyUp in this format
		applied = append(applied, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

// PendingMigrations lists the loaded migrations not yet applied.
func (db *DB) PendingMigrations(ctx context.Context) ([]Migration, error) {
	done, err := db.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	all, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}

	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func (db *DB) ensureMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(applied))
	for _, rec := range applied {
		set[rec.Version] = true
	}
	return set, nil
}

// applyUp runs one migration and records it, atomically.
func (db *DB) applyUp(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads every migration pair out of MigrationsFS and
// returns them sorted oldest first. An unset FS or missing directory
// yields an empty set, not an error, so the package works without
// embedded migrations (tests install their own).
func loadMigrations() ([]Migration, error) {
	var unset embed.FS
	if MigrationsFS == unset {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := splitMigrationName(entry.Name())
		if !ok {
			continue
		}

		sqlBytes, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(sqlBytes)
		} else {
			m.DownSQL = string(sqlBytes)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			// A lone .down.sql has nothing to apply.
			continue
		}
		migrations = append(migrations, *m)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// splitMigrationName parses YYYYMMDD_HHMMSS_description.up.sql (or
// .down.sql) into its version, description and direction.
func splitMigrationName(filename string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	// Date, time, then everything after is the description.
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 {
		return "", "", false, false
	}

	version = parts[0] + "_" + parts[1]
	if len(parts) == 3 {
		name = parts[2]
	} else {
		name = base
	}
	return version, name, up, true
}
