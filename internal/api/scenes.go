package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
)

// handleListScenes returns all scenes known to the cloud.
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.cloud.Scenes(r.Context())
	if err != nil {
		s.logger.Warn("scene listing failed", "error", err)
		writeUnavailable(w, "cloud scene listing unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// sceneRecallRequest is the optional body for POST /scenes/{id}/recall.
// An empty or absent target recalls the scene on every member.
type sceneRecallRequest struct {
	Target string `json:"target,omitempty"`
}

// handleRecallScene triggers a stored scene. The body is optional; when
// present it may narrow the recall to a single device or group target.
func (s *Server) handleRecallScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sceneRecallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	if err := s.cloud.RecallScene(ctx, id, req.Target, nil); err != nil {
		s.logger.Error("scene recall failed", "scene_id", id, "target", req.Target, "error", err)
		writeError(w, http.StatusBadGateway, "cloud_error", "cloud rejected scene recall")
		return
	}

	s.recordAudit(audit.ActionSceneRecall, "scene", id, usernameFrom(ctx), map[string]any{"target": req.Target})
	s.logger.Info("scene recalled", "scene_id", id, "target", req.Target)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"message": "scene recall sent, member states follow via WebSocket",
	})
}
