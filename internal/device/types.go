package device

import (
	"strings"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
)

// Type identifies a Connect Mesh product by its reverse-DNS identifier,
// e.g. "com.haefele.led.multiwhite.spot". Capability predicates work on
// identifier prefixes, so firmware revisions that introduce new variants
// of a known family are classified without a code change.
type Type string

// Device types reported by the cloud API.
const (
	TypeLedvanceSocket Type = "de.ledvance.socket"
	TypeJungSocket     Type = "de.jung.socket"

	TypeNimbusPadDirect   Type = "de.nimbus.lighting.pad.direct"
	TypeNimbusPadIndirect Type = "de.nimbus.lighting.pad.indirect"
	TypeNimbusLeggera     Type = "de.nimbus.leggera"
	TypeNimbusQClassic    Type = "de.nimbus.q.classic.multiwhite"
	TypeNimbusQCubic      Type = "de.nimbus.q.cubic.multiwhite"
	TypeNimbusQFour       Type = "de.nimbus.q.four.multiwhite"
	TypeNimbusZen         Type = "de.nimbus.zen"

	TypeTVLift       Type = "com.haefele.tvlift"
	TypeMotor        Type = "com.haefele.motor"
	TypeWardrobeLift Type = "com.haefele.lift.wardrobe"
	TypePushlock     Type = "com.haefele.pushlock"
	TypePushlock5s   Type = "com.haefele.pushlock.5s"

	TypeLEDRGB              Type = "com.haefele.led.rgb"
	TypeLEDRGBSpot          Type = "com.haefele.led.rgb.spot"
	TypeLEDMultiwhiteSpot   Type = "com.haefele.led.multiwhite.spot"
	TypeLEDMultiwhite2200K  Type = "com.haefele.led.multiwhite.2200K"
	TypeLEDMultiwhite2700K  Type = "com.haefele.led.multiwhite.2700K"
	TypeLEDMonochromeSpot2W Type = "com.haefele.led.multiwhite.2wire.monochrome.spot"
	TypeLEDMonochromeStri2W Type = "com.haefele.led.multiwhite.2wire.monochrome.stripe"
	TypeLEDMultiwhiteSpot2W Type = "com.haefele.led.multiwhite.2wire.mw.spot"
	TypeLEDMultiwhiteStri2W Type = "com.haefele.led.multiwhite.2wire.mw.stripe"
	TypeLEDWhite            Type = "com.haefele.led.white"
	TypeLEDWhiteStrip       Type = "com.haefele.led.white.strip"

	TypeSocket                 Type = "com.haefele.socket"
	TypeMotionSensor           Type = "com.haefele.motion.sensor"
	TypeFurnitureSensorMains   Type = "com.haefele.furniture.sensor.mains"
	TypeFurnitureSensorBattery Type = "com.haefele.furniture.sensor.battery"
	TypeWallController         Type = "com.haefele.wallcontroller.actuator"
	TypeQDevMultiwhite         Type = "com.haefele.q.dev.multiwhite"
	TypeQDevMonochrome         Type = "com.haefele.q.dev.monochrome"

	TypeGenericLEDMultiwhite Type = "com.generic.led.multiwhite"
	TypeGenericLEDWhite      Type = "com.generic.led.white"
	TypeGenericLEDRGB        Type = "com.generic.led.rgb"
	TypeGenericLevel         Type = "com.generic.level"
	TypeNordicDevkitLevel    Type = "com.nordic.devkit.level"
)

// Prefix tables behind the capability predicates. Order is irrelevant;
// a type matches if any prefix matches.
var (
	lightPrefixes = []string{"com.haefele.led", "com.generic.led", "de.nimbus"}

	colorTempPrefixes = []string{
		"com.haefele.led.multiwhite",
		"de.nimbus.q",
		"com.haefele.q.dev.multiwhite",
		"com.generic.led.multiwhite",
	}

	hslPrefixes = []string{"com.haefele.led.rgb", "com.generic.led.rgb"}

	socketPrefixes = []string{"de.ledvance.socket", "com.haefele.socket", "de.jung.socket"}

	sensorPrefixes = []string{"com.haefele.motion.sensor", "com.haefele.furniture.sensor"}
)

func (t Type) hasAnyPrefix(prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(string(t), prefix) {
			return true
		}
	}
	return false
}

// IsLight reports whether the type is a lighting product.
func (t Type) IsLight() bool {
	return t.hasAnyPrefix(lightPrefixes)
}

// SupportsColorTemp reports whether the type accepts tunable-white
// temperature commands.
func (t Type) SupportsColorTemp() bool {
	return t.hasAnyPrefix(colorTempPrefixes)
}

// SupportsHSL reports whether the type accepts hue/saturation/lightness
// commands.
func (t Type) SupportsHSL() bool {
	return t.hasAnyPrefix(hslPrefixes)
}

// IsSocket reports whether the type is a mains socket.
func (t Type) IsSocket() bool {
	return t.hasAnyPrefix(socketPrefixes)
}

// IsSensor reports whether the type is a motion or furniture sensor.
// Sensors report status but do not accept commands.
func (t Type) IsSensor() bool {
	return t.hasAnyPrefix(sensorPrefixes)
}

// Manufacturer derives the vendor name from the type prefix.
func (t Type) Manufacturer() string {
	s := string(t)
	switch {
	case strings.HasPrefix(s, "de.ledvance."):
		return "LEDVANCE"
	case strings.HasPrefix(s, "de.jung."):
		return "JUNG"
	case strings.HasPrefix(s, "de.nimbus."):
		return "Nimbus"
	case strings.HasPrefix(s, "com.haefele."):
		return "Häfele"
	case strings.HasPrefix(s, "com.generic."):
		return "Generic"
	default:
		return "Unknown"
	}
}

// Device is the bridge's view of a provisioned mesh device. It carries
// the cloud catalogue fields plus the locally tracked state and
// availability that the poller maintains.
type Device struct {
	// Identity. UniqueID is the identifier the cloud command API
	// addresses devices by; the registry is keyed by it.
	ID       string `json:"id"`
	UniqueID string `json:"unique_id"`

	NetworkID   string `json:"network_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        Type   `json:"type"`

	// Mesh addressing and provisioning metadata.
	UnicastAddress    int       `json:"unicast_address"`
	BLEAddress        string    `json:"ble_address,omitempty"`
	MACBytes          string    `json:"mac_bytes,omitempty"`
	BootloaderVersion string    `json:"bootloader_version,omitempty"`
	DeviceKey         string    `json:"-"`
	Elements          []Element `json:"elements,omitempty"`

	// Locally tracked state. Nil until the first successful status poll.
	State *State `json:"state,omitempty"`

	// Availability as maintained by the poller.
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitzero"`

	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Element is one addressable component of a mesh device. Multi-channel
// products expose one element per channel.
type Element struct {
	DeviceID       string `json:"device_id"`
	UnicastAddress int    `json:"unicast_address"`
	Models         []int  `json:"models"`
}

// State is the last known device state on the mesh scale. Lightness and
// Temperature are 0-65535; Hue is degrees 0-360 and Saturation 0-1.
// Optional fields are nil when the device does not report them.
type State struct {
	Power         bool      `json:"power"`
	Lightness     *int      `json:"lightness,omitempty"`
	LastLightness *int      `json:"last_lightness,omitempty"`
	Temperature   *int      `json:"temperature,omitempty"`
	Hue           *float64  `json:"hue,omitempty"`
	Saturation    *float64  `json:"saturation,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// FromCloud builds a Device from the cloud catalogue representation.
// State and availability start empty; the poller fills them in.
func FromCloud(cd cloud.Device) *Device {
	d := &Device{
		ID:                cd.ID,
		UniqueID:          cd.UniqueID,
		NetworkID:         cd.NetworkID,
		Name:              cd.Name,
		Description:       cd.Description,
		Type:              Type(cd.Type),
		UnicastAddress:    cd.UnicastAddress,
		BLEAddress:        cd.BLEAddress,
		MACBytes:          cd.MACBytes,
		BootloaderVersion: cd.BootloaderVersion,
		DeviceKey:         cd.DeviceKey,
	}
	if len(cd.Elements) > 0 {
		d.Elements = make([]Element, len(cd.Elements))
		for i, el := range cd.Elements {
			d.Elements[i] = Element{
				DeviceID:       el.DeviceID,
				UnicastAddress: el.UnicastAddress,
				Models:         append([]int(nil), el.Models...),
			}
		}
	}
	return d
}

// StateFromCloud converts a polled cloud status state into the mesh-scale
// State representation. Fractional mesh values are rounded to the nearest
// integer step.
func StateFromCloud(cs cloud.DeviceState, at time.Time) State {
	st := State{
		Power:     cs.Power,
		UpdatedAt: at,
	}
	st.Lightness = roundPtr(cs.Lightness)
	st.LastLightness = roundPtr(cs.LastLightness)
	st.Temperature = roundPtr(cs.Temperature)
	if cs.Hue != nil {
		hue := *cs.Hue
		st.Hue = &hue
	}
	if cs.Saturation != nil {
		sat := *cs.Saturation
		st.Saturation = &sat
	}
	return st
}

func roundPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(*v + 0.5)
	return &n
}

// DeepCopy creates a complete independent copy of the Device.
// Slice and pointer fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	// Deep copy elements including their model lists
	if d.Elements != nil {
		cpy.Elements = make([]Element, len(d.Elements))
		for i, el := range d.Elements {
			cpy.Elements[i] = el
			if el.Models != nil {
				cpy.Elements[i].Models = make([]int, len(el.Models))
				copy(cpy.Elements[i].Models, el.Models)
			}
		}
	}

	cpy.State = d.State.DeepCopy()

	return &cpy
}

// DeepCopy clones the state including its optional pointer fields.
func (s *State) DeepCopy() *State {
	if s == nil {
		return nil
	}
	cpy := *s
	cpy.Lightness = copyIntPtr(s.Lightness)
	cpy.LastLightness = copyIntPtr(s.LastLightness)
	cpy.Temperature = copyIntPtr(s.Temperature)
	cpy.Hue = copyFloatPtr(s.Hue)
	cpy.Saturation = copyFloatPtr(s.Saturation)
	return &cpy
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
