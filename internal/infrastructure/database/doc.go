// Package database is the bridge's SQLite layer: a single pooled
// connection with WAL journalling, foreign keys enforced, embedded
// schema migrations and a health probe.
//
// The pool is deliberately pinned to one connection. SQLite permits a
// single writer, and one shared conn means the pragmas negotiated at
// open time govern every statement the repositories run.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Repositories receive the embedded *sql.DB; only the composition root
// holds the *database.DB wrapper.
//
// Migrations live in the top-level migrations directory as
// YYYYMMDD_HHMMSS_<name>.up.sql / .down.sql pairs, embedded into the
// binary and applied forward-only at startup. Down files exist for
// development rollback. Schema changes stay additive: new columns are
// nullable or defaulted, existing columns are never dropped or renamed.
package database
