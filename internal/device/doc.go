// Package device models Connect Mesh devices and holds the in-memory
// registry the rest of the bridge works from.
//
// The cloud is the source of truth for the device catalogue; the
// poller feeds cloud snapshots into the Registry, and the REST API,
// the MQTT entity bridge and the poller itself all read from it.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        device package                        │
//	│                                                              │
//	│  ┌────────────────┐   ┌────────────────┐   ┌──────────────┐  │
//	│  │    Registry    │   │  Type taxonomy │   │ Conversions  │  │
//	│  │ (registry.go)  │   │   (types.go)   │   │(conversions. │  │
//	│  │                │   │                │   │     go)      │  │
//	│  │ • Deep copies  │   │ • IsLight etc. │   │ • 0-255      │  │
//	│  │ • RWMutex      │   │ • Manufacturer │   │ • 0.0-1.0    │  │
//	│  │ • Availability │   │ • Prefix match │   │ • 0-65535    │  │
//	│  └────────────────┘   └────────────────┘   └──────────────┘  │
//	└──────────────────────────────────────────────────────────────┘
//	         ▲                                          ▲
//	         │ snapshots                                │ scale maths
//	   internal/poll                        internal/bridge, internal/api
//
// # Key Types
//
//   - Device: catalogue fields from the cloud plus locally tracked
//     state and availability
//   - Type: reverse-DNS product identifier with capability predicates
//   - State: last known device state on the mesh scale
//   - Registry: thread-safe in-memory catalogue keyed by unique ID
//
// # Capability Model
//
// Capabilities are derived from the type identifier prefix rather than
// an explicit feature list. "com.haefele.led.multiwhite.spot" is a
// light that supports colour temperature; "com.haefele.socket" is a
// switchable socket. Unknown types fall through every predicate and
// are still carried in the registry, so new products appear in
// listings before they gain first-class support.
//
// # Thread Safety
//
// Registry methods are safe for concurrent use. Reads return deep
// copies and writes store deep copies; no caller ever holds a pointer
// into the registry's own map.
package device
