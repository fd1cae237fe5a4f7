// Package bridge exposes Connect Mesh devices to Home Assistant over
// MQTT.
//
// It publishes discovery configs, state and availability for every
// device the poller tracks, and translates Home Assistant command
// payloads into Connect Mesh cloud calls.
//
// # Architecture
//
// The bridge sits between the MQTT broker and the cloud client:
//
//	┌─────────────────┐          ┌─────────────────┐          ┌──────────────┐
//	│  Home Assistant │   MQTT   │  Entity Bridge  │   HTTPS  │ Connect Mesh │
//	│  (mqtt integr.) │◄────────►│   (this pkg)    │◄────────►│    cloud     │
//	└─────────────────┘          └─────────────────┘          └──────────────┘
//
// # Key Responsibilities
//
//   - Publish retained Home Assistant discovery configs (light, switch,
//     scene, diagnostic sensors) for devices, groups and scenes
//   - Publish retained JSON state and online/offline availability
//   - Subscribe to command topics and map payloads to cloud calls with
//     scale conversion (brightness, mireds, hue/saturation)
//   - Optimistically update the registry and republish state after a
//     successful command
//
// # Entity Model
//
// Each mesh device becomes one primary entity (light for lighting
// types, switch for sockets) plus two diagnostics: a connectivity
// binary_sensor fed from the availability topic and a last-update
// timestamp sensor fed from the state document. Groups become
// optimistic lights, scenes become scene entities. Sensor-only device
// types get diagnostics but no primary entity, since the cloud offers
// no command surface for them.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Command handlers
// run on the MQTT client's goroutines and are tracked so Stop can
// drain in-flight cloud calls.
package bridge
