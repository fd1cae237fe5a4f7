package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
)

// handleListGroups returns mesh groups from the cloud, optionally scoped
// to one network with ?network_id.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	var err error
	var groups []cloud.Group

	if networkID := r.URL.Query().Get("network_id"); networkID != "" {
		groups, err = s.cloud.GroupsForNetwork(r.Context(), networkID)
	} else {
		groups, err = s.cloud.Groups(r.Context())
	}
	if err != nil {
		s.logger.Warn("group listing failed", "error", err)
		writeUnavailable(w, "cloud group listing unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "count": len(groups)})
}

// groupStateRequest is the request body for PUT /groups/{id}/state.
// Lightness is mesh-scale 0-65535.
type groupStateRequest struct {
	Power     *bool `json:"power,omitempty"`
	Lightness *int  `json:"lightness,omitempty"`
}

func (req *groupStateRequest) validate() error {
	if req.Power == nil && req.Lightness == nil {
		return errors.New("at least one of power or lightness is required")
	}
	if req.Lightness != nil && (*req.Lightness < 0 || *req.Lightness > meshScaleMax) {
		return errors.New("lightness must be in 0-65535")
	}
	return nil
}

// handleSetGroupState relays a state command to every member of a group.
// Like device commands this returns 202 Accepted; member states confirm
// individually through the poll cycle.
func (s *Server) handleSetGroupState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req groupStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()
	applied := []string{}

	if req.Lightness != nil {
		if err := s.cloud.SetGroupLightness(ctx, id, float64(*req.Lightness)/meshScaleMax, nil); err != nil {
			s.logger.Error("group command failed", "group_id", id, "command", "lightness", "error", err)
			writeError(w, http.StatusBadGateway, "cloud_error", "cloud rejected lightness command")
			return
		}
		applied = append(applied, "lightness")
	}
	if req.Power != nil {
		if err := s.cloud.SetGroupPower(ctx, id, *req.Power, nil); err != nil {
			s.logger.Error("group command failed", "group_id", id, "command", "power", "error", err)
			writeError(w, http.StatusBadGateway, "cloud_error", "cloud rejected power command")
			return
		}
		applied = append(applied, "power")
	}

	s.recordAudit(audit.ActionCommand, "group", id, usernameFrom(ctx), map[string]any{"applied": applied})
	s.logger.Info("group command sent", "group_id", id, "applied", applied)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"applied": applied,
		"message": "command sent, member states follow via WebSocket",
	})
}
