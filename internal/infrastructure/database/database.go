package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirMode  = 0750
	fileMode = 0600

	// openPingTimeout bounds the connectivity probe inside Open.
	openPingTimeout = 5 * time.Second
)

// Config holds the database section of the bridge configuration.
type Config struct {
	// Path is the SQLite file location. Its parent directory is created
	// on first open.
	Path string

	// WALMode switches the journal to write-ahead logging so reads do
	// not block behind the single writer.
	WALMode bool

	// BusyTimeout is how long, in seconds, a statement waits on a lock
	// before returning SQLITE_BUSY.
	BusyTimeout int
}

// DB is the bridge's handle on its SQLite store. The embedded sql.DB
// carries the query surface; DB adds migrations, a health probe and
// lifecycle management on top.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database described by
// cfg, applies the connection pragmas, restricts file permissions and
// verifies connectivity before returning.
//
// The pool is pinned to one connection. SQLite allows a single writer,
// and funnelling every statement through one conn also means the
// per-connection pragmas apply to all of them.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirMode); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // already on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file only exists after the first write on a fresh database,
	// so a chmod failure here is not an error.
	_ = os.Chmod(cfg.Path, fileMode)

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dsn renders the go-sqlite3 connection string for cfg. Foreign keys
// are always enforced; WAL and the busy timeout follow the config.
func dsn(cfg Config) string {
	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// Path returns the location of the database file on disk.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck confirms the database answers a trivial query. Used by
// the startup checks and the health endpoint.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats exposes the connection pool counters for the metrics endpoint.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// Close releases the underlying connection. Safe to call on a DB whose
// open failed partway.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
