// Package audit records operator-visible activity: imports, relayed
// commands, scene recalls and logins. Entries land in the audit_logs
// table and come back out through the history endpoint.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionImport      = "import"
	ActionCommand     = "command"
	ActionSceneRecall = "scene_recall"
	ActionLogin       = "login"
)

// List pagination bounds.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AuditLog is one audit trail entry. EntityID, UserID and Details are
// optional; Details holds action-specific context as JSON.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	UserID     string         `json:"user_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Limit      int // clamped to 1..200, default 50
	Offset     int
}

// ListResult is one page of entries plus the unpaginated total.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository is the audit trail surface the API server depends on.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit entries in the bridge database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry, generating ID and CreatedAt when unset.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details any
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		orNull(log.EntityID), orNull(log.UserID),
		log.Source, details,
		log.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns one page of entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where, args := buildWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, entity_type, entity_id, user_id, source, details, created_at FROM audit_logs" +
		where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// buildWhere assembles the WHERE clause for filter. Only ?
// placeholders go into the SQL string; values travel as args.
func buildWhere(filter Filter) (string, []any) {
	var conds []string
	var args []any

	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanLog(rows *sql.Rows) (AuditLog, error) {
	var log AuditLog
	var entityID, userID, details sql.NullString
	var createdAt string

	if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
		&entityID, &userID, &log.Source, &details, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}

	log.EntityID = entityID.String
	log.UserID = userID.String
	if details.String != "" {
		// Unparseable details are dropped rather than failing the page.
		var m map[string]any
		if json.Unmarshal([]byte(details.String), &m) == nil {
			log.Details = m
		}
	}

	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		// Rows written by other tools may use SQLite's datetime form.
		ts, err = time.Parse("2006-01-02 15:04:05", createdAt)
		if err != nil {
			return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
	}
	log.CreatedAt = ts

	return log, nil
}

// orNull maps the empty string to NULL for optional TEXT columns.
func orNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}
