package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the chi router. Middleware order matters: request
// IDs are assigned before logging so every log line carries one, and
// recovery sits inside logging so a panic still produces an access log entry.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		s.corsMiddleware,
		s.bodySizeLimitMiddleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Health stays open for monitoring probes.
		r.Get("/system/health", s.handleHealth)

		// Login and refresh authenticate by credential, not Bearer token.
		r.With(s.loginRateLimitMiddleware).Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Browsers cannot attach an Authorization header to a WebSocket
		// upgrade, so the handshake authenticates with a single-use ticket
		// checked inside the handler.
		r.Get("/ws", s.handleWebSocket)

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleAuthMe)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/system/version", s.handleVersion)
			r.Get("/system/metrics", s.handleMetrics)

			r.Route("/networks", func(r chi.Router) {
				r.Get("/", s.handleListNetworks)
				r.Get("/{id}", s.handleGetNetwork)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/stats", s.handleDeviceStats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/state", s.handleGetDeviceState)
					r.Put("/state", s.handleSetDeviceState)
					r.Get("/history", s.handleGetDeviceHistory)
				})
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListGroups)
				r.Put("/{id}/state", s.handleSetGroupState)
			})

			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)
				r.Post("/{id}/recall", s.handleRecallScene)
			})

			r.Route("/gateways", func(r chi.Router) {
				r.Get("/", s.handleListGateways)
				r.Post("/{id}/ping", s.handlePingGateway)
			})

			// Export ingestion is two-phase: validate previews, import commits.
			r.Route("/export", func(r chi.Router) {
				r.Post("/validate", s.handleExportValidate)
				r.Post("/import", s.handleExportImport)
				r.Get("/imports", s.handleListImports)
				r.Get("/imports/{id}", s.handleGetImport)
				r.Delete("/imports/{id}", s.handleDeleteImport)
			})

			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}
