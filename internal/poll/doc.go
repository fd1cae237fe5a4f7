// Package poll keeps the local picture of the mesh fresh.
//
// Three loops run against the cloud API, each on its own cadence:
//
//   - Status: per-device state polls (default 30s, ±10% jitter so
//     cycles drift apart). Changes flow to the registry, the MQTT
//     bridge and telemetry.
//   - Details: catalogue refresh for known devices (default 5m),
//     catching renames and firmware updates.
//   - Discovery: full sweep of networks, devices, groups and scenes
//     (default 15m), adding new devices, pruning vanished ones and
//     persisting snapshots for offline serving.
//
// A device counts as available while its last successful status poll
// is younger than the configured timeout, or until the cloud itself
// reports the node unreachable. Transitions in either direction are
// published exactly once.
//
// Status polls for distinct devices run concurrently under a small
// worker bound; polls for the same device never overlap. The cloud
// client's per-device rate limiter meters the request rate beneath
// that.
package poll
