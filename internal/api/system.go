package api

import (
	"context"
	"net/http"
	"time"
)

// healthProbeTimeout bounds each component check so one stuck dependency
// cannot hang the whole health response.
const healthProbeTimeout = 3 * time.Second

// handleHealth returns the aggregate health of the bridge and its
// dependencies. Optional components report "disabled" rather than
// failing the aggregate; any erroring component degrades the status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string)
	status := "ok"

	probe := func(name string, check func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			return
		}
		components[name] = "ok"
	}

	if s.db != nil {
		probe("database", s.db.HealthCheck)
	} else {
		components["database"] = "disabled"
	}

	if s.mqtt != nil {
		probe("mqtt", s.mqtt.HealthCheck)
	} else {
		components["mqtt"] = "disabled"
	}

	probe("cloud", s.cloud.HealthCheck)

	if s.influx != nil {
		probe("influxdb", s.influx.HealthCheck)
	} else {
		components["influxdb"] = "disabled"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// handleVersion returns the running version.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}
