package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/influxdb"
)

const (
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 200
	defaultHistoryWindow = 24 * time.Hour
)

// handleGetDeviceHistory returns recorded state samples for one device.
//
// Query parameters:
//   - limit: maximum samples, default 50, capped at 200
//   - since: RFC3339 start of the window, default 24h ago
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := chi.URLParam(r, "id")

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	since, err := parseSinceParam(r.URL.Query().Get("since"))
	if err != nil {
		writeBadRequest(w, "invalid since timestamp")
		return
	}
	if since.IsZero() {
		since = time.Now().UTC().Add(-defaultHistoryWindow)
	}

	if _, err := s.registry.Get(deviceID); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if s.influx == nil || !s.influx.IsConnected() {
		writeUnavailable(w, "state history unavailable")
		return
	}

	samples, err := s.influx.QueryDeviceHistory(ctx, deviceID, since, limit)
	if err != nil {
		if errors.Is(err, influxdb.ErrNotConnected) {
			writeUnavailable(w, "state history unavailable")
			return
		}
		s.logger.Error("history query failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load device history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"since":     since.Format(time.RFC3339),
		"history":   samples,
		"count":     len(samples),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseSinceParam parses the since parameter as RFC3339, empty meaning unset.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}

	return parsed.UTC(), nil
}
