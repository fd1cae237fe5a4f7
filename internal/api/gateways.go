package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListGateways returns the gateways registered with the cloud
// account and their connection state.
func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := s.cloud.Gateways(r.Context())
	if err != nil {
		s.logger.Warn("gateway listing failed", "error", err)
		writeUnavailable(w, "cloud gateway listing unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"gateways": gateways, "count": len(gateways)})
}

// handlePingGateway asks the cloud to round-trip a ping through one
// gateway, proving the gateway's own link into the mesh.
func (s *Server) handlePingGateway(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.cloud.PingGateway(r.Context(), id); err != nil {
		s.logger.Warn("gateway ping failed", "gateway_id", id, "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"gateway_id": id,
			"reachable":  false,
			"error":      err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"gateway_id": id,
		"reachable":  true,
	})
}
