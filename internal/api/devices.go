package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
)

// meshScaleMax is the top of the mesh lightness/temperature scale.
const meshScaleMax = 65535

// handleListDevices returns all known devices, with optional query filters.
//
// Query parameters:
//   - network_id: filter by network
//   - online: "true" or "false" filters by availability
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var devices []*device.Device
	if networkID := r.URL.Query().Get("network_id"); networkID != "" {
		devices = s.registry.ListByNetwork(networkID)
	} else {
		devices = s.registry.List()
	}

	if online := r.URL.Query().Get("online"); online == "true" || online == "false" {
		want := online == "true"
		filtered := devices[:0]
		for _, d := range devices {
			if d.Online == want {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleDeviceStats returns device registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, stats)
}

// handleGetDevice returns a single device by unique ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
		} else {
			writeInternalError(w, "failed to get device")
		}
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleGetDeviceState returns the last polled state of a device. With
// ?live=true the cloud is asked directly, bypassing the poll cache.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if r.URL.Query().Get("live") == "true" {
		status, err := s.cloud.DeviceStatus(r.Context(), id)
		if err != nil {
			s.logger.Warn("live status fetch failed", "device_id", id, "error", err)
			writeUnavailable(w, "cloud status unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"device_id": id,
			"state":     status.State,
			"online":    status.Online,
			"source":    "cloud",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"state":     dev.State,
		"online":    dev.Online,
		"last_seen": dev.LastSeen,
		"source":    "poll",
	})
}

// hslCommand is the combined hue/saturation/lightness component of a
// device state request. Hue is degrees 0-360, saturation 0-1 and
// lightness mesh-scale 0-65535.
type hslCommand struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Lightness  int     `json:"lightness"`
}

// deviceStateRequest is the request body for PUT /devices/{id}/state.
// Each present field becomes one cloud command; fields are applied in
// the order hsl, temperature, lightness, power.
type deviceStateRequest struct {
	Power       *bool       `json:"power,omitempty"`
	Lightness   *int        `json:"lightness,omitempty"`
	Temperature *int        `json:"temperature,omitempty"`
	HSL         *hslCommand `json:"hsl,omitempty"`
}

func (req *deviceStateRequest) validate() error {
	if req.Power == nil && req.Lightness == nil && req.Temperature == nil && req.HSL == nil {
		return errors.New("at least one of power, lightness, temperature or hsl is required")
	}
	if req.Lightness != nil && (*req.Lightness < 0 || *req.Lightness > meshScaleMax) {
		return errors.New("lightness must be in 0-65535")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > meshScaleMax) {
		return errors.New("temperature must be in 0-65535")
	}
	if req.HSL != nil {
		if req.HSL.Hue < 0 || req.HSL.Hue > 360 {
			return errors.New("hsl.hue must be in 0-360")
		}
		if req.HSL.Saturation < 0 || req.HSL.Saturation > 1 {
			return errors.New("hsl.saturation must be in 0-1")
		}
		if req.HSL.Lightness < 0 || req.HSL.Lightness > meshScaleMax {
			return errors.New("hsl.lightness must be in 0-65535")
		}
	}
	return nil
}

// handleSetDeviceState relays state commands to the cloud. The response
// is 202 Accepted: confirmed state arrives through the next poll and is
// broadcast on the WebSocket, never written here.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.Get(id); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	var req deviceStateRequest
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

	if req.HSL != nil {
		lightness := float64(req.HSL.Lightness) / meshScaleMax
		if err := s.cloud.SetHSL(ctx, id, req.HSL.Hue, req.HSL.Saturation, lightness, nil); err != nil {
			s.commandFailed(w, r, id, "hsl", err)
			return
		}
		applied = append(applied, "hsl")
	}
	if req.Temperature != nil {
		if err := s.cloud.SetTemperature(ctx, id, *req.Temperature, nil); err != nil {
			s.commandFailed(w, r, id, "temperature", err)
			return
		}
		applied = append(applied, "temperature")
	}
	if req.Lightness != nil {
		if err := s.cloud.SetLightness(ctx, id, float64(*req.Lightness)/meshScaleMax, nil); err != nil {
			s.commandFailed(w, r, id, "lightness", err)
			return
		}
		applied = append(applied, "lightness")
	}
	if req.Power != nil {
		if err := s.cloud.SetPower(ctx, id, *req.Power, nil); err != nil {
			s.commandFailed(w, r, id, "power", err)
			return
		}
		applied = append(applied, "power")
	}

	s.recordAudit(audit.ActionCommand, "device", id, usernameFrom(ctx), map[string]any{"applied": applied})
	s.logger.Info("device command sent", "device_id", id, "applied", applied)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"applied": applied,
		"message": "command sent, confirmed state follows via WebSocket",
	})
}

// commandFailed logs and reports a cloud command failure. The audit
// entry records the rejected command so operators can correlate
// complaints with cloud outages.
func (s *Server) commandFailed(w http.ResponseWriter, r *http.Request, id, command string, err error) {
	s.logger.Error("device command failed", "device_id", id, "command", command, "error", err)
	s.recordAudit(audit.ActionCommand, "device", id, usernameFrom(r.Context()), map[string]any{
		"command": command,
		"result":  "failed",
	})
	writeError(w, http.StatusBadGateway, "cloud_error", "cloud rejected "+command+" command")
}
