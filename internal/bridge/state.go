package bridge

import (
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/device"
)

// colorValue carries hue and saturation in the JSON light schema's
// units: degrees and percent.
type colorValue struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
}

// statePayload is the retained state document published per device.
// Lights fill the optional attributes; sockets publish state and
// timestamp only. The shape matches what the JSON schema light and the
// switch value_template in the discovery configs expect.
type statePayload struct {
	State      string      `json:"state"`
	Brightness *int        `json:"brightness,omitempty"`
	ColorMode  string      `json:"color_mode,omitempty"`
	ColorTemp  *int        `json:"color_temp,omitempty"`
	Color      *colorValue `json:"color,omitempty"`
	UpdatedAt  string      `json:"updated_at,omitempty"`
}

// buildState maps a device's cached mesh state onto the MQTT payload.
// Colour mode reflects the last attribute the mesh reported: hue wins
// over temperature, temperature over plain brightness.
func buildState(d *device.Device) statePayload {
	p := statePayload{State: "OFF"}
	st := d.State
	if st == nil {
		return p
	}
	if st.Power {
		p.State = "ON"
	}
	if !st.UpdatedAt.IsZero() {
		p.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if !d.Type.IsLight() {
		return p
	}

	if st.Lightness != nil {
		if b, err := device.MeshToBrightness(*st.Lightness); err == nil {
			p.Brightness = &b
		}
	}

	switch {
	case d.Type.SupportsHSL() && st.Hue != nil && st.Saturation != nil:
		p.ColorMode = colorModeHS
		p.Color = &colorValue{H: *st.Hue, S: *st.Saturation * 100}
	case d.Type.SupportsColorTemp() && st.Temperature != nil:
		p.ColorMode = colorModeColorTemp
		if mireds, err := device.MeshToMireds(*st.Temperature); err == nil {
			p.ColorTemp = &mireds
		}
	default:
		p.ColorMode = colorModeBrightness
	}
	return p
}
