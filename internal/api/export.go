package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
	"github.com/nerrad567/connectmesh-bridge/internal/meshexport"
	"github.com/nerrad567/connectmesh-bridge/internal/store"
)

// readExportDocument reads the export JSON from the request: either the
// "file" field of a multipart form or the raw request body. A false
// return means the error response has already been written.
func (s *Server) readExportDocument(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil {
			writeBadRequest(w, "failed to parse multipart form: file may be too large")
			return nil, false
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeBadRequest(w, "missing required 'file' field in form data")
			return nil, false
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			s.logger.Error("export upload read failed", "filename", header.Filename, "error", err)
			writeBadRequest(w, "failed to read uploaded file")
			return nil, false
		}
		return data, true
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return nil, false
	}
	if len(data) == 0 {
		writeBadRequest(w, "request body is empty")
		return nil, false
	}
	return data, true
}

// exportSummary condenses a decoded export for responses.
type exportSummary struct {
	MeshName string `json:"mesh_name"`
	MeshUUID string `json:"mesh_uuid"`
	Version  string `json:"version"`
	Partial  bool   `json:"partial"`
	Nodes    int    `json:"nodes"`
	Groups   int    `json:"groups"`
	Scenes   int    `json:"scenes"`
}

func summarise(export *meshexport.NetworkExport) exportSummary {
	return exportSummary{
		MeshName: export.MeshName,
		MeshUUID: export.MeshUUID,
		Version:  export.Version,
		Partial:  export.Partial,
		Nodes:    len(export.Nodes),
		Groups:   len(export.Groups),
		Scenes:   len(export.Scenes),
	}
}

// handleExportValidate checks an export document without persisting it.
//
// This is phase 1 of the two-phase ingestion: the dashboard shows the
// violation list so the operator can fix the document before importing.
// Schema violations are listed in full; with ?refs=true a schema-valid
// document also gets the referential pass (key bindings, group and
// scene addresses, unicast overlap).
func (s *Server) handleExportValidate(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readExportDocument(w, r)
	if !ok {
		return
	}

	export, result, err := meshexport.Decode(data)
	if err != nil {
		if errors.Is(err, meshexport.ErrParse) {
			writeError(w, http.StatusBadRequest, ErrCodeParse, "document is not well-formed JSON")
			return
		}
		writeBadRequest(w, "document could not be decoded: "+err.Error())
		return
	}

	if !result.Valid() {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":           false,
			"violations":      result.Violations,
			"violation_count": len(result.Violations),
		})
		return
	}

	response := map[string]any{
		"valid":           true,
		"violations":      []meshexport.Violation{},
		"violation_count": 0,
		"summary":         summarise(export),
	}

	if r.URL.Query().Get("refs") == "true" {
		refViolations := meshexport.CheckReferences(export)
		response["reference_violations"] = refViolations
		response["reference_violation_count"] = len(refViolations)
	}

	writeJSON(w, http.StatusOK, response)
}

// handleExportImport validates and persists an export document.
//
// Phase 2: schema violations reject the import outright; referential
// findings are stored as warnings so a document from a mesh app with
// quirks can still be imported.
func (s *Server) handleExportImport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeUnavailable(w, "export store not configured")
		return
	}

	data, ok := s.readExportDocument(w, r)
	if !ok {
		return
	}

	export, result, err := meshexport.Decode(data)
	if err != nil {
		if errors.Is(err, meshexport.ErrParse) {
			writeError(w, http.StatusBadRequest, ErrCodeParse, "document is not well-formed JSON")
			return
		}
		writeBadRequest(w, "document could not be decoded: "+err.Error())
		return
	}
	if !result.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":           "schema validation failed",
			"code":            ErrCodeValidation,
			"violations":      result.Violations,
			"violation_count": len(result.Violations),
		})
		return
	}

	warnings := meshexport.CheckReferences(export)

	rec := &store.ExportRecord{
		MeshUUID:     export.MeshUUID,
		MeshName:     export.MeshName,
		Version:      export.Version,
		Partial:      export.Partial,
		Document:     json.RawMessage(data),
		WarningCount: len(warnings),
	}
	if err := s.exports.Save(r.Context(), rec); err != nil {
		s.logger.Error("export import failed", "mesh_uuid", export.MeshUUID, "error", err)
		writeInternalError(w, "failed to store export")
		return
	}

	s.recordAudit(audit.ActionImport, "export", rec.ID, usernameFrom(r.Context()), map[string]any{
		"mesh_uuid": export.MeshUUID,
		"mesh_name": export.MeshName,
		"nodes":     len(export.Nodes),
		"warnings":  len(warnings),
	})
	s.logger.Info("export imported",
		"export_id", rec.ID,
		"mesh_name", export.MeshName,
		"mesh_uuid", export.MeshUUID,
		"nodes", len(export.Nodes),
		"warnings", len(warnings),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          rec.ID,
		"imported_at": rec.ImportedAt.Format(time.RFC3339),
		"summary":     summarise(export),
		"warnings":    warnings,
	})
}

// handleListImports returns stored export metadata, most recent first.
// Documents are omitted; fetch a single import for the full payload.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeUnavailable(w, "export store not configured")
		return
	}

	records, err := s.exports.List(r.Context())
	if err != nil {
		s.logger.Error("export listing failed", "error", err)
		writeInternalError(w, "failed to list imports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"imports": records, "count": len(records)})
}

// handleGetImport returns one stored export including its document.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeUnavailable(w, "export store not configured")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.exports.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "import not found")
			return
		}
		writeInternalError(w, "failed to get import")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteImport removes a stored export record.
func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		writeUnavailable(w, "export store not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.exports.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "import not found")
			return
		}
		writeInternalError(w, "failed to delete import")
		return
	}

	s.logger.Info("export deleted", "export_id", id, "username", usernameFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
