package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/config"
)

// Defaults for the two topic roots. Both are configurable; the
// discovery prefix must match the Home Assistant mqtt integration's
// setting for discovery to work.
const (
	DefaultBaseTopic       = "meshbridge"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Availability payloads. Home Assistant's mqtt integration expects
// these exact strings on availability topics unless overridden in the
// discovery config.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds the bridge's MQTT topic names from the configured
// roots. The bridge's own tree carries state, availability and command
// topics; discovery config topics live under the Home Assistant
// discovery prefix.
//
//	topics := mqtt.NewTopics(cfg.MQTT)
//	topics.DeviceState("c7f2...")       // meshbridge/c7f2.../state
//	topics.Discovery("light", "c7f2...", "light")
//	// homeassistant/light/c7f2.../light/config
type Topics struct {
	base      string
	discovery string
}

// NewTopics creates a topic builder from the MQTT configuration,
// falling back to the defaults for unset roots.
func NewTopics(cfg config.MQTTConfig) Topics {
	t := Topics{
		base:      strings.Trim(cfg.BaseTopic, "/"),
		discovery: strings.Trim(cfg.DiscoveryPrefix, "/"),
	}
	if t.base == "" {
		t.base = DefaultBaseTopic
	}
	if t.discovery == "" {
		t.discovery = DefaultDiscoveryPrefix
	}
	return t
}

// Base returns the bridge topic root.
func (t Topics) Base() string {
	return t.base
}

// BridgeAvailability returns the bridge's own availability topic. The
// LWT and the graceful shutdown message are published here.
//
// Example: meshbridge/bridge/availability
func (t Topics) BridgeAvailability() string {
	return fmt.Sprintf("%s/bridge/availability", t.base)
}

// DeviceState returns the retained state topic for a device or group
// entity.
//
// Example: meshbridge/c7f2a91e/state
func (t Topics) DeviceState(entityID string) string {
	return fmt.Sprintf("%s/%s/state", t.base, entityID)
}

// DeviceAvailability returns the availability topic for a device
// entity.
//
// Example: meshbridge/c7f2a91e/availability
func (t Topics) DeviceAvailability(entityID string) string {
	return fmt.Sprintf("%s/%s/availability", t.base, entityID)
}

// DeviceCommand returns the command topic the bridge subscribes to for
// an entity.
//
// Example: meshbridge/c7f2a91e/set
func (t Topics) DeviceCommand(entityID string) string {
	return fmt.Sprintf("%s/%s/set", t.base, entityID)
}

// SceneRecall returns the command topic for recalling a scene.
//
// Example: meshbridge/scene/scn-1/recall
func (t Topics) SceneRecall(sceneID string) string {
	return fmt.Sprintf("%s/scene/%s/recall", t.base, sceneID)
}

// AllDeviceCommands returns a pattern matching every entity command
// topic.
//
// Pattern: meshbridge/+/set
func (t Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/set", t.base)
}

// AllSceneRecalls returns a pattern matching every scene recall topic.
//
// Pattern: meshbridge/scene/+/recall
func (t Topics) AllSceneRecalls() string {
	return fmt.Sprintf("%s/scene/+/recall", t.base)
}

// Discovery returns a Home Assistant discovery config topic.
//
// Example: homeassistant/light/c7f2a91e/light/config
func (t Topics) Discovery(component, nodeID, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", t.discovery, component, nodeID, objectID)
}

// EntityID extracts the entity segment from a topic under the bridge
// root, or "" if the topic does not match the expected shape. Used by
// command handlers to recover the target from a wildcard subscription.
func (t Topics) EntityID(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.base+"/")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}

// SceneID extracts the scene segment from a scene recall topic, or ""
// if the topic does not match.
func (t Topics) SceneID(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.base+"/scene/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/recall")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// maxSlugLength bounds generated topic segments.
const maxSlugLength = 64

// Slugify converts a free-form name into a safe topic and object ID
// segment: lower case, alphanumerics and underscores only.
func Slugify(name string) string {
	slug := strings.ToLower(name)

	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "-", "_")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	slug = strings.Trim(slug, "_")
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}

	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "_")
	}
	return slug
}
