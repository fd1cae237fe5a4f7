package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/device"
)

// colorCommand carries hue and saturation from an inbound hs colour
// command, in degrees and percent.
type colorCommand struct {
	H *float64 `json:"h"`
	S *float64 `json:"s"`
}

// lightCommand is the decoded form of a device or group command
// payload. All attribute fields are optional; absent means "leave
// alone".
type lightCommand struct {
	State      string        `json:"state"`
	Brightness *int          `json:"brightness"`
	ColorTemp  *int          `json:"color_temp"`
	Color      *colorCommand `json:"color"`
}

// sceneCommand is the optional JSON body of a scene recall. Target
// narrows the recall to one device or group; empty recalls everywhere.
type sceneCommand struct {
	Target string `json:"target"`
}

// parseLightCommand decodes a command payload. Bare ON/OFF strings are
// accepted alongside the JSON schema documents Home Assistant sends.
func parseLightCommand(payload []byte) (lightCommand, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return lightCommand{}, fmt.Errorf("%w: empty payload", ErrBadPayload)
	}

	var cmd lightCommand
	if trimmed[0] != '{' {
		switch strings.ToUpper(string(trimmed)) {
		case "ON":
			cmd.State = "ON"
		case "OFF":
			cmd.State = "OFF"
		default:
			return lightCommand{}, fmt.Errorf("%w: %q", ErrBadPayload, string(trimmed))
		}
		return cmd, nil
	}

	if err := json.Unmarshal(trimmed, &cmd); err != nil {
		return lightCommand{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	cmd.State = strings.ToUpper(strings.TrimSpace(cmd.State))
	if cmd.State != "" && cmd.State != "ON" && cmd.State != "OFF" {
		return lightCommand{}, fmt.Errorf("%w: state %q", ErrBadPayload, cmd.State)
	}
	if err := cmd.validate(); err != nil {
		return lightCommand{}, err
	}
	return cmd, nil
}

// validate range-checks the attribute fields against the bounds the
// discovery configs advertise.
func (c lightCommand) validate() error {
	if c.Brightness != nil && (*c.Brightness < 0 || *c.Brightness > device.BrightnessMax) {
		return fmt.Errorf("%w: brightness %d", ErrBadPayload, *c.Brightness)
	}
	if c.ColorTemp != nil && (*c.ColorTemp < device.MinMireds || *c.ColorTemp > device.MaxMireds) {
		return fmt.Errorf("%w: color_temp %d", ErrBadPayload, *c.ColorTemp)
	}
	if c.Color != nil {
		if c.Color.H == nil || c.Color.S == nil {
			return fmt.Errorf("%w: color requires h and s", ErrBadPayload)
		}
		if *c.Color.H < 0 || *c.Color.H > 360 {
			return fmt.Errorf("%w: hue %v", ErrBadPayload, *c.Color.H)
		}
		if *c.Color.S < 0 || *c.Color.S > 100 {
			return fmt.Errorf("%w: saturation %v", ErrBadPayload, *c.Color.S)
		}
	}
	return nil
}

// parseSceneTarget extracts the optional target from a scene recall
// payload. Plain trigger strings such as "recall" mean no target.
func parseSceneTarget(payload []byte) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", nil
	}
	var sc sceneCommand
	if err := json.Unmarshal(trimmed, &sc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return strings.TrimSpace(sc.Target), nil
}

// optimisticState projects a command onto a device's cached state so
// the bridge can publish the expected outcome without waiting for the
// next poll. Power mirrors the execution rules: lightness-carrying
// attributes raise the lamp, a lone temperature change does not. The
// conversions cannot fail here because validate already bounded the
// inputs.
func optimisticState(d *device.Device, cmd lightCommand, now time.Time) device.State {
	var st device.State
	if d.State != nil {
		st = *d.State.DeepCopy()
	}
	st.UpdatedAt = now

	if cmd.State == "OFF" {
		if st.Lightness != nil {
			last := *st.Lightness
			st.LastLightness = &last
		}
		st.Power = false
		return st
	}

	turnsOn := cmd.State == "ON"
	colourApplied := cmd.Color != nil && d.Type.SupportsHSL()
	if colourApplied {
		h := *cmd.Color.H
		s := *cmd.Color.S / 100
		st.Hue = &h
		st.Saturation = &s
		turnsOn = true
	}
	if cmd.Brightness != nil && d.Type.IsLight() {
		if mesh, err := device.BrightnessToMesh(*cmd.Brightness); err == nil {
			st.Lightness = &mesh
		}
		turnsOn = true
	}
	if cmd.ColorTemp != nil && !colourApplied && d.Type.SupportsColorTemp() {
		if mesh, err := device.MiredsToMesh(*cmd.ColorTemp); err == nil {
			st.Temperature = &mesh
		}
	}
	if turnsOn {
		st.Power = true
	}
	return st
}
