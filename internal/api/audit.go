package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
)

const (
	// auditChanSize bounds the queue between request handlers and the
	// audit writer. A full queue drops entries rather than stalling
	// requests.
	auditChanSize = 256

	// auditSource tags entries written by the REST API. The audit
	// schema allows other sources, so listings can filter on it.
	auditSource = "api"
)

// recordAudit queues an audit entry from a request handler. Writing
// happens asynchronously; when audit is not configured this is a
// no-op.
func (s *Server) recordAudit(action, entityType, entityID, userID string, details map[string]any) {
	if s.auditCh == nil || s.auditRepo == nil {
		return
	}

	entry := &audit.AuditLog{
		Source:     auditSource,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Details:    details,
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit queue full, dropping entry",
			"action", action,
			"entity_type", entityType,
		)
	}
}

func (s *Server) writeAudit(entry *audit.AuditLog) {
	if err := s.auditRepo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

// runAuditWriter consumes the audit queue serially, which matches
// SQLite's single-writer model and keeps goroutine count flat no
// matter the request rate. On shutdown it flushes whatever is queued
// before returning.
func (s *Server) runAuditWriter(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAudit(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAudit(entry)
				default:
					return
				}
			}
		}
	}
}

// handleListAuditLogs returns one page of the audit trail. Filters
// arrive as query parameters: action, entity_type, entity_id, plus
// limit and offset for paging.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	result, err := s.auditRepo.List(r.Context(), audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Limit:      queryInt(q, "limit"),
		Offset:     queryInt(q, "offset"),
	})
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an integer query parameter, zero when absent or
// malformed. The repository applies its own bounds.
func queryInt(q url.Values, name string) int {
	n, _ := strconv.Atoi(q.Get(name))
	return n
}
