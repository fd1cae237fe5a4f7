package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Device is a provisioned mesh device as reported by the cloud. UniqueID
// is the identifier the control and status endpoints expect; ID is the
// cloud's internal object ID.
type Device struct {
	ID                string    `json:"id"`
	UniqueID          string    `json:"uniqueId"`
	NetworkID         string    `json:"networkId"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Type              string    `json:"type"`
	UnicastAddress    int       `json:"unicastAddress"`
	BLEAddress        string    `json:"bleAddress"`
	MACBytes          string    `json:"macBytes"`
	BootloaderVersion string    `json:"bootloaderVersion"`
	DeviceKey         string    `json:"deviceKey"`
	Elements          []Element `json:"elements"`
}

// Element is an addressable sub-unit of a device.
type Element struct {
	DeviceID       string `json:"deviceId"`
	UnicastAddress int    `json:"unicastAddress"`
	Models         []int  `json:"models"`
}

// DeviceState is the reported state of one device. Lightness, temperature
// and lastLightness use the mesh 0-65535 scale. Fields the device does not
// support are nil.
type DeviceState struct {
	Power         bool     `json:"power"`
	Lightness     *float64 `json:"lightness,omitempty"`
	LastLightness *float64 `json:"lastLightness,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Hue           *float64 `json:"hue,omitempty"`
	Saturation    *float64 `json:"saturation,omitempty"`
}

// DeviceStatus is the live status of one device.
type DeviceStatus struct {
	State  *DeviceState `json:"state"`
	Online bool         `json:"online"`
}

// CommandOptions tune how the gateway relays a command into the mesh.
type CommandOptions struct {
	// Acknowledged waits for the target to confirm the state change.
	Acknowledged bool

	// Retries is the number of mesh-level retransmissions.
	Retries int

	// TimeoutMS is the mesh operation budget in milliseconds.
	TimeoutMS int
}

// DefaultCommandOptions returns the options used when callers pass nil:
// acknowledged delivery with a 10 second mesh timeout.
func DefaultCommandOptions() CommandOptions {
	return CommandOptions{Acknowledged: true, Retries: 0, TimeoutMS: 10000}
}

func resolveOptions(opts *CommandOptions) CommandOptions {
	if opts == nil {
		return DefaultCommandOptions()
	}
	return *opts
}

// commandEnvelope carries the fields every state-change payload shares.
type commandEnvelope struct {
	UniqueID     string `json:"uniqueId"`
	Acknowledged bool   `json:"acknowledged"`
	Retries      int    `json:"retries"`
	TimeoutMS    int    `json:"timeout_ms"`
}

func envelope(deviceID string, o CommandOptions) commandEnvelope {
	return commandEnvelope{
		UniqueID:     deviceID,
		Acknowledged: o.Acknowledged,
		Retries:      o.Retries,
		TimeoutMS:    o.TimeoutMS,
	}
}

// commandResult is the acknowledgement body returned by the lightness,
// temperature and HSL endpoints. The power endpoint returns no body.
type commandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (r commandResult) check(operation string) error {
	if r.Success {
		return nil
	}
	code := r.Error
	if code == "" {
		code = "UNKNOWN_ERROR"
	}
	return fmt.Errorf("%w: %s: %s", ErrCommandFailed, operation, code)
}

// Devices lists every device visible to the configured token.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/devices", &raw); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	var devices []Device
	if err := json.Unmarshal(ensureList(raw), &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}

// DevicesForNetwork lists the devices belonging to one network. The cloud
// has no server-side filter, so this narrows the full listing locally.
func (c *Client) DevicesForNetwork(ctx context.Context, networkID string) ([]Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.NetworkID == networkID {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

// Device fetches details for one device.
func (c *Client) Device(ctx context.Context, deviceID string) (*Device, error) {
	var device Device
	if err := c.get(ctx, "/devices/"+url.PathEscape(deviceID), &device); err != nil {
		return nil, fmt.Errorf("failed to fetch device %s: %w", deviceID, err)
	}
	return &device, nil
}

// DeviceStatus fetches the live state of one device. Requests for the same
// device are spaced at least the configured minimum interval apart so a
// burst of callers cannot exceed the cloud's polling allowance.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (*DeviceStatus, error) {
	if err := c.statusLimiter.wait(ctx, deviceID); err != nil {
		return nil, err
	}

	var status DeviceStatus
	if err := c.get(ctx, "/devices/"+url.PathEscape(deviceID)+"/status", &status); err != nil {
		return nil, fmt.Errorf("failed to fetch status for device %s: %w", deviceID, err)
	}
	if status.State == nil {
		return nil, fmt.Errorf("cloud: status for device %s has no state", deviceID)
	}
	return &status, nil
}

// SetPower switches a device on or off.
func (c *Client) SetPower(ctx context.Context, deviceID string, on bool, opts *CommandOptions) error {
	o := resolveOptions(opts)
	power := "off"
	if on {
		power = "on"
	}

	cmd := struct {
		Power string `json:"power"`
		commandEnvelope
	}{Power: power, commandEnvelope: envelope(deviceID, o)}

	if err := c.command(ctx, http.MethodPut, "/devices/power", cmd, o, nil); err != nil {
		return fmt.Errorf("failed to set power for device %s: %w", deviceID, err)
	}
	return nil
}

// SetLightness sets device brightness on the cloud's 0 to 1 scale.
func (c *Client) SetLightness(ctx context.Context, deviceID string, lightness float64, opts *CommandOptions) error {
	if lightness < 0 || lightness > 1 {
		return fmt.Errorf("%w: lightness %v not in [0, 1]", ErrOutOfRange, lightness)
	}
	o := resolveOptions(opts)

	cmd := struct {
		Lightness float64 `json:"lightness"`
		commandEnvelope
	}{Lightness: lightness, commandEnvelope: envelope(deviceID, o)}

	var result commandResult
	if err := c.command(ctx, http.MethodPut, "/devices/lightness", cmd, o, &result); err != nil {
		return fmt.Errorf("failed to set lightness for device %s: %w", deviceID, err)
	}
	if err := result.check("set lightness"); err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}
	return nil
}

// SetTemperature sets colour temperature on the mesh 0-65535 scale.
func (c *Client) SetTemperature(ctx context.Context, deviceID string, temperature int, opts *CommandOptions) error {
	if temperature < 0 || temperature > 65535 {
		return fmt.Errorf("%w: temperature %d not in [0, 65535]", ErrOutOfRange, temperature)
	}
	o := resolveOptions(opts)

	cmd := struct {
		Temperature int `json:"temperature"`
		commandEnvelope
	}{Temperature: temperature, commandEnvelope: envelope(deviceID, o)}

	var result commandResult
	if err := c.command(ctx, http.MethodPut, "/devices/temperature", cmd, o, &result); err != nil {
		return fmt.Errorf("failed to set temperature for device %s: %w", deviceID, err)
	}
	if err := result.check("set temperature"); err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}
	return nil
}

// SetHSL sets hue (0-360 degrees), saturation (0-1) and lightness (0-1)
// in a single command.
func (c *Client) SetHSL(ctx context.Context, deviceID string, hue, saturation, lightness float64, opts *CommandOptions) error {
	if hue < 0 || hue > 360 {
		return fmt.Errorf("%w: hue %v not in [0, 360]", ErrOutOfRange, hue)
	}
	if saturation < 0 || saturation > 1 {
		return fmt.Errorf("%w: saturation %v not in [0, 1]", ErrOutOfRange, saturation)
	}
	if lightness < 0 || lightness > 1 {
		return fmt.Errorf("%w: lightness %v not in [0, 1]", ErrOutOfRange, lightness)
	}
	o := resolveOptions(opts)

	cmd := struct {
		Hue        float64 `json:"hue"`
		Saturation float64 `json:"saturation"`
		Lightness  float64 `json:"lightness"`
		commandEnvelope
	}{Hue: hue, Saturation: saturation, Lightness: lightness, commandEnvelope: envelope(deviceID, o)}

	var result commandResult
	if err := c.command(ctx, http.MethodPut, "/devices/hsl", cmd, o, &result); err != nil {
		return fmt.Errorf("failed to set HSL for device %s: %w", deviceID, err)
	}
	if err := result.check("set HSL"); err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}
	return nil
}

// command issues a state-change request with a timeout derived from the
// mesh operation budget plus a transport buffer.
func (c *Client) command(ctx context.Context, method, path string, body any, o CommandOptions, out any) error {
	timeout := time.Duration(o.TimeoutMS)*time.Millisecond + time.Second
	return c.do(ctx, method, path, body, out, timeout)
}
