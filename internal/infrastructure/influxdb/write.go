package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names used by the bridge.
const (
	// MeasurementDeviceState holds per-device light state samples.
	MeasurementDeviceState = "device_state"

	// MeasurementDeviceAvailability holds online/offline transitions.
	MeasurementDeviceAvailability = "device_availability"
)

// StatePoint is one device state sample for the device_state measurement.
//
// Tags (device, network, type) index the series; optional fields are
// written only when present, so a socket never carries lightness and a
// monochrome light never carries hue. Values are in mesh scale.
type StatePoint struct {
	DeviceID   string
	NetworkID  string
	DeviceType string

	Power       bool
	Lightness   *int
	Temperature *int
	Hue         *float64
	Saturation  *float64

	// Time of the sample; zero means now.
	Time time.Time
}

// submit queues one point on the batching writer. Writes on a
// disconnected client are dropped silently; telemetry is best effort.
func (c *Client) submit(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

// WriteDeviceState records a device state sample. This is the primary
// write path, called on every poll delta and after every bridged
// command. Non-blocking; the point is batched and sent asynchronously.
func (c *Client) WriteDeviceState(p StatePoint) {
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	// Power as 0/1 so Flux aggregations work over it.
	power := 0
	if p.Power {
		power = 1
	}

	fields := map[string]interface{}{
		"power": power,
	}
	if p.Lightness != nil {
		fields["lightness"] = *p.Lightness
	}
	if p.Temperature != nil {
		fields["temperature"] = *p.Temperature
	}
	if p.Hue != nil {
		fields["hue"] = *p.Hue
	}
	if p.Saturation != nil {
		fields["saturation"] = *p.Saturation
	}

	c.submit(MeasurementDeviceState, map[string]string{
		"device_id":  p.DeviceID,
		"network_id": p.NetworkID,
		"type":       p.DeviceType,
	}, fields, ts)
}

// WriteAvailability records an online/offline transition for a device.
//
// Written only on transitions, not on every poll, so the series stays
// sparse and a connectivity chart reads directly from it.
func (c *Client) WriteAvailability(deviceID, networkID string, online bool) {
	state := 0
	if online {
		state = 1
	}

	c.submit(MeasurementDeviceAvailability, map[string]string{
		"device_id":  deviceID,
		"network_id": networkID,
	}, map[string]interface{}{
		"online": state,
	}, time.Now())
}

// WritePoint records a custom measurement, used for whatever does not
// fit the helpers above, such as poll cycle statistics:
//
//	client.WritePoint("poll_cycle",
//	    map[string]string{"kind": "status"},
//	    map[string]interface{}{"duration_ms": 412, "devices": 17})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.submit(measurement, tags, fields, time.Now())
}
