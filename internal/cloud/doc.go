// Package cloud implements the Häfele Connect Mesh cloud API client.
//
// The Connect Mesh gateway has no local API, so every read and write goes
// through Häfele's cloud. This package wraps that REST surface with typed
// models, retries, and per-device rate limiting.
//
// # Key Responsibilities
//
//   - Authenticate requests with the configured bearer token
//   - Fetch networks, devices, groups, scenes, and gateways
//   - Relay power, lightness, temperature, and HSL commands into the mesh
//   - Retry transient failures with exponential backoff and jitter
//   - Space device status reads so polling stays within the cloud allowance
//
// # Response Quirks
//
// The cloud API has two decoding hazards this package absorbs so callers
// never see them:
//
//   - List endpoints return a bare object instead of a one-element array
//     when exactly one item exists.
//   - Network detail payloads double-encode nested structures as JSON
//     strings, which are expanded recursively before decoding.
//
// # Error Handling
//
// Failed requests wrap sentinel errors (ErrUnauthorized, ErrNotFound,
// ErrRateLimited, ErrServer) so callers can branch with errors.Is without
// inspecting status codes. Command endpoints that acknowledge mesh
// delivery report refusals as ErrCommandFailed.
//
// # Thread Safety
//
// Client is safe for concurrent use from multiple goroutines.
//
// # References
//
//   - Connect Mesh cloud: https://cloud.connect-mesh.io
package cloud
