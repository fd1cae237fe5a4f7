package bridge

import (
	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
	"github.com/nerrad567/connectmesh-bridge/internal/device"
	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/mqtt"
)

// uniqueIDPrefix namespaces entity unique IDs so the bridge never
// collides with another integration in the same Home Assistant
// instance.
const uniqueIDPrefix = "meshbridge_"

// Discovery component names from the Home Assistant MQTT convention.
const (
	componentLight        = "light"
	componentSwitch       = "switch"
	componentSensor       = "sensor"
	componentBinarySensor = "binary_sensor"
	componentScene        = "scene"
)

// HA colour mode identifiers for the JSON light schema.
const (
	colorModeBrightness = "brightness"
	colorModeColorTemp  = "color_temp"
	colorModeHS         = "hs"
)

// availabilityRef points an entity at one availability topic.
type availabilityRef struct {
	Topic string `json:"topic"`
}

// originInfo identifies the publishing service in discovery payloads.
type originInfo struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// haDevice is the device registry block shared by every entity of one
// physical device, so Home Assistant groups them on a single device
// page.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// lightConfig is the discovery payload for a JSON-schema MQTT light.
// Name is a pointer so the primary entity can publish null and inherit
// the device name.
type lightConfig struct {
	Schema              string            `json:"schema"`
	Name                *string           `json:"name"`
	UniqueID            string            `json:"unique_id"`
	StateTopic          string            `json:"state_topic,omitempty"`
	CommandTopic        string            `json:"command_topic"`
	Availability        []availabilityRef `json:"availability"`
	AvailabilityMode    string            `json:"availability_mode"`
	Brightness          bool              `json:"brightness"`
	BrightnessScale     int               `json:"brightness_scale,omitempty"`
	SupportedColorModes []string          `json:"supported_color_modes"`
	MinMireds           int               `json:"min_mireds,omitempty"`
	MaxMireds           int               `json:"max_mireds,omitempty"`
	Optimistic          bool              `json:"optimistic,omitempty"`
	Device              haDevice          `json:"device"`
	Origin              originInfo        `json:"origin"`
}

// switchConfig is the discovery payload for a socket. Command payloads
// are the same JSON documents lights use, so one parser serves every
// entity kind.
type switchConfig struct {
	Name             *string           `json:"name"`
	UniqueID         string            `json:"unique_id"`
	StateTopic       string            `json:"state_topic"`
	CommandTopic     string            `json:"command_topic"`
	PayloadOn        string            `json:"payload_on"`
	PayloadOff       string            `json:"payload_off"`
	StateOn          string            `json:"state_on"`
	StateOff         string            `json:"state_off"`
	ValueTemplate    string            `json:"value_template"`
	DeviceClass      string            `json:"device_class,omitempty"`
	Availability     []availabilityRef `json:"availability"`
	AvailabilityMode string            `json:"availability_mode"`
	Device           haDevice          `json:"device"`
	Origin           originInfo        `json:"origin"`
}

// sensorConfig is the discovery payload for the last-update diagnostic
// sensor.
type sensorConfig struct {
	Name             *string           `json:"name"`
	UniqueID         string            `json:"unique_id"`
	StateTopic       string            `json:"state_topic"`
	ValueTemplate    string            `json:"value_template"`
	DeviceClass      string            `json:"device_class,omitempty"`
	EntityCategory   string            `json:"entity_category,omitempty"`
	Availability     []availabilityRef `json:"availability"`
	AvailabilityMode string            `json:"availability_mode"`
	Device           haDevice          `json:"device"`
	Origin           originInfo        `json:"origin"`
}

// binarySensorConfig is the discovery payload for the connectivity
// diagnostic. Its state topic is the device availability topic itself.
type binarySensorConfig struct {
	Name           *string           `json:"name"`
	UniqueID       string            `json:"unique_id"`
	StateTopic     string            `json:"state_topic"`
	PayloadOn      string            `json:"payload_on"`
	PayloadOff     string            `json:"payload_off"`
	DeviceClass    string            `json:"device_class,omitempty"`
	EntityCategory string            `json:"entity_category,omitempty"`
	Availability   []availabilityRef `json:"availability"`
	Device         haDevice          `json:"device"`
	Origin         originInfo        `json:"origin"`
}

// sceneConfig is the discovery payload for a recallable scene.
type sceneConfig struct {
	Name         string            `json:"name"`
	UniqueID     string            `json:"unique_id"`
	CommandTopic string            `json:"command_topic"`
	PayloadOn    string            `json:"payload_on"`
	Availability []availabilityRef `json:"availability"`
	Origin       originInfo        `json:"origin"`
}

// discoveryMessage pairs one retained config topic with its payload.
type discoveryMessage struct {
	Topic   string
	Payload any
}

// origin returns the shared origin block.
func origin(version string) originInfo {
	return originInfo{Name: "meshbridge", SWVersion: version}
}

// deviceBlock builds the HA device registry block for a mesh device.
func deviceBlock(d *device.Device) haDevice {
	return haDevice{
		Identifiers:  []string{uniqueIDPrefix + d.UniqueID},
		Name:         d.Name,
		Manufacturer: d.Type.Manufacturer(),
		Model:        string(d.Type),
		SWVersion:    d.BootloaderVersion,
	}
}

// entityAvailability lists the topics that must all read online for the
// entity to be available: the bridge's own LWT topic and the per-device
// one the poller maintains.
func entityAvailability(t mqtt.Topics, entityID string) []availabilityRef {
	return []availabilityRef{
		{Topic: t.BridgeAvailability()},
		{Topic: t.DeviceAvailability(entityID)},
	}
}

// bridgeAvailability lists only the bridge LWT topic, for entities with
// no per-device availability of their own.
func bridgeAvailability(t mqtt.Topics) []availabilityRef {
	return []availabilityRef{{Topic: t.BridgeAvailability()}}
}

// colorModes derives the JSON light schema colour mode list from the
// device type. Modes beyond brightness imply brightness support, so
// the plain mode appears only on its own.
func colorModes(t device.Type) []string {
	modes := []string{}
	if t.SupportsColorTemp() {
		modes = append(modes, colorModeColorTemp)
	}
	if t.SupportsHSL() {
		modes = append(modes, colorModeHS)
	}
	if len(modes) == 0 {
		modes = append(modes, colorModeBrightness)
	}
	return modes
}

// deviceDiscovery builds every retained discovery message for one mesh
// device: the primary entity (light or switch) when the type supports
// commands, plus the two diagnostics.
func deviceDiscovery(d *device.Device, t mqtt.Topics, version string) []discoveryMessage {
	id := d.UniqueID
	dev := deviceBlock(d)
	org := origin(version)
	messages := []discoveryMessage{}

	switch {
	case d.Type.IsLight():
		cfg := lightConfig{
			Schema:              "json",
			Name:                nil,
			UniqueID:            uniqueIDPrefix + id,
			StateTopic:          t.DeviceState(id),
			CommandTopic:        t.DeviceCommand(id),
			Availability:        entityAvailability(t, id),
			AvailabilityMode:    "all",
			Brightness:          true,
			BrightnessScale:     device.BrightnessMax,
			SupportedColorModes: colorModes(d.Type),
			Device:              dev,
			Origin:              org,
		}
		if d.Type.SupportsColorTemp() {
			cfg.MinMireds = device.MinMireds
			cfg.MaxMireds = device.MaxMireds
		}
		messages = append(messages, discoveryMessage{
			Topic:   t.Discovery(componentLight, id, "light"),
			Payload: cfg,
		})

	case d.Type.IsSocket():
		cfg := switchConfig{
			Name:             nil,
			UniqueID:         uniqueIDPrefix + id,
			StateTopic:       t.DeviceState(id),
			CommandTopic:     t.DeviceCommand(id),
			PayloadOn:        `{"state":"ON"}`,
			PayloadOff:       `{"state":"OFF"}`,
			StateOn:          "ON",
			StateOff:         "OFF",
			ValueTemplate:    "{{ value_json.state }}",
			DeviceClass:      "outlet",
			Availability:     entityAvailability(t, id),
			AvailabilityMode: "all",
			Device:           dev,
			Origin:           org,
		}
		messages = append(messages, discoveryMessage{
			Topic:   t.Discovery(componentSwitch, id, "switch"),
			Payload: cfg,
		})
	}

	lastUpdateName := "Last update"
	messages = append(messages, discoveryMessage{
		Topic: t.Discovery(componentSensor, id, "last_update"),
		Payload: sensorConfig{
			Name:             &lastUpdateName,
			UniqueID:         uniqueIDPrefix + id + "_last_update",
			StateTopic:       t.DeviceState(id),
			ValueTemplate:    "{{ value_json.updated_at }}",
			DeviceClass:      "timestamp",
			EntityCategory:   "diagnostic",
			Availability:     entityAvailability(t, id),
			AvailabilityMode: "all",
			Device:           dev,
			Origin:           org,
		},
	})

	connectivityName := "Connectivity"
	messages = append(messages, discoveryMessage{
		Topic: t.Discovery(componentBinarySensor, id, "connectivity"),
		Payload: binarySensorConfig{
			Name:           &connectivityName,
			UniqueID:       uniqueIDPrefix + id + "_connectivity",
			StateTopic:     t.DeviceAvailability(id),
			PayloadOn:      mqtt.PayloadOnline,
			PayloadOff:     mqtt.PayloadOffline,
			DeviceClass:    "connectivity",
			EntityCategory: "diagnostic",
			Availability:   bridgeAvailability(t),
			Device:         dev,
			Origin:         org,
		},
	})

	return messages
}

// groupDiscovery builds the discovery message for a device group. Group
// state is not polled, so the light runs in optimistic mode with no
// state topic.
func groupDiscovery(g cloud.Group, t mqtt.Topics, version string) []discoveryMessage {
	cfg := lightConfig{
		Schema:           "json",
		Name:             nil,
		UniqueID:         uniqueIDPrefix + "group_" + g.ID,
		CommandTopic:     t.DeviceCommand(g.ID),
		Availability:     bridgeAvailability(t),
		AvailabilityMode: "all",
		Brightness:       true,
		BrightnessScale:  device.BrightnessMax,
		SupportedColorModes: []string{
			colorModeBrightness,
		},
		Optimistic: true,
		Device: haDevice{
			Identifiers:  []string{uniqueIDPrefix + "group_" + g.ID},
			Name:         g.Name,
			Manufacturer: "Häfele",
			Model:        "Connect Mesh group",
		},
		Origin: origin(version),
	}
	return []discoveryMessage{{
		Topic:   t.Discovery(componentLight, g.ID, "light"),
		Payload: cfg,
	}}
}

// sceneDiscovery builds the discovery message for a scene.
func sceneDiscovery(s cloud.Scene, t mqtt.Topics, version string) []discoveryMessage {
	cfg := sceneConfig{
		Name:         s.Name,
		UniqueID:     uniqueIDPrefix + "scene_" + s.ID,
		CommandTopic: t.SceneRecall(s.ID),
		PayloadOn:    "recall",
		Availability: bridgeAvailability(t),
		Origin:       origin(version),
	}
	return []discoveryMessage{{
		Topic:   t.Discovery(componentScene, s.ID, "scene"),
		Payload: cfg,
	}}
}
