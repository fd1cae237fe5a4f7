package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/connectmesh-bridge/internal/store"
)

// handleListNetworks returns the cached network rows. With ?refresh=true
// the cloud is queried first and the cache updated, so the response
// reflects the account as of now rather than the last discovery sweep.
func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("refresh") == "true" {
		if err := s.refreshNetworks(r); err != nil {
			s.logger.Warn("network refresh failed, serving cached rows", "error", err)
		}
	}

	if s.networks == nil {
		writeUnavailable(w, "network store not configured")
		return
	}

	rows, err := s.networks.List(ctx)
	if err != nil {
		s.logger.Error("failed to list networks", "error", err)
		writeInternalError(w, "failed to list networks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"networks": rows, "count": len(rows)})
}

// handleGetNetwork returns a single cached network row.
func (s *Server) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	if s.networks == nil {
		writeUnavailable(w, "network store not configured")
		return
	}

	id := chi.URLParam(r, "id")
	row, err := s.networks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w, "network not found")
			return
		}
		s.logger.Error("failed to get network", "network_id", id, "error", err)
		writeInternalError(w, "failed to get network")
		return
	}

	writeJSON(w, http.StatusOK, row)
}

// refreshNetworks pulls the account's networks and groups from the
// cloud and upserts the cache rows. Device counts come from the
// registry, which the poller keeps current.
func (s *Server) refreshNetworks(r *http.Request) error {
	if s.networks == nil {
		return nil
	}

	ctx := r.Context()
	networks, err := s.cloud.Networks(ctx)
	if err != nil {
		return err
	}

	groups, err := s.cloud.Groups(ctx)
	if err != nil {
		return err
	}
	groupCounts := make(map[string]int)
	for _, g := range groups {
		groupCounts[g.NetworkID]++
	}

	for _, n := range networks {
		row := &store.NetworkRow{
			ID:          n.ID,
			Name:        n.Name,
			DeviceCount: len(s.registry.ListByNetwork(n.ID)),
			GroupCount:  groupCounts[n.ID],
		}
		if err := s.networks.Upsert(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
