// Package api implements the HTTP REST API and WebSocket server for the
// mesh bridge.
//
// This package provides:
//   - REST endpoints for device, group, scene and gateway reads and commands
//   - Network export validation and import (two-phase: validate, then commit)
//   - WebSocket hub for real-time state and availability broadcasts
//   - JWT authentication with refresh sessions and ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body size limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between operator tooling (web dashboards, meshctl,
// Home Assistant diagnostics) and the device registry + cloud client.
// Commands flow from the API to the cloud; confirmed state flows back
// through the poller onto MQTT, which this package relays to WebSocket
// clients. The API never writes device state directly; the poll cycle is
// the single source of confirmed state.
//
// # Security
//
// A single operator account authenticates with an argon2id password hash
// from configuration. Access tokens are short-lived HS256 JWTs; refresh
// tokens rotate per use with family-based reuse detection. WebSocket
// connections use single-use tickets to keep tokens out of URLs.
//
// # Graceful Degradation
//
// The server operates without MQTT (no WebSocket relay), without InfluxDB
// (history returns 503) and without the audit repository (writes are
// skipped). Cloud reads and registry reads keep working throughout.
package api
