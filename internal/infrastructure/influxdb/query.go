package influxdb

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// History query limits.
const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
)

// deviceIDPattern restricts IDs interpolated into Flux string literals.
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// HistorySample is one field sample from the device_state measurement.
//
// Each poll delta produces one sample per populated field, so a
// multiwhite light yields power, lightness and temperature rows for the
// same timestamp. Booleans are flattened to 0/1.
type HistorySample struct {
	Time  time.Time `json:"time"`
	Field string    `json:"field"`
	Value float64   `json:"value"`
}

// QueryDeviceHistory returns device_state samples for one device from
// start onwards, oldest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device unique ID (tag value, validated before use)
//   - start: Start of the query window
//   - limit: Maximum samples to return (0 uses the default, capped)
//
// Returns:
//   - []HistorySample: Samples in time order, empty slice when none
//   - error: nil on success, otherwise the query error
func (c *Client) QueryDeviceHistory(ctx context.Context, deviceID string, start time.Time, limit int) ([]HistorySample, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if !deviceIDPattern.MatchString(deviceID) {
		return nil, fmt.Errorf("%w: invalid device id %q", ErrQueryFailed, deviceID)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// limit() in Flux applies per series table, so the scan loop below
	// enforces the overall cap.
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r.device_id == %q)
  |> sort(columns: ["_time"])
  |> limit(n: %d)`,
		c.cfg.Bucket,
		start.UTC().Format(time.RFC3339),
		MeasurementDeviceState,
		deviceID,
		limit,
	)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	samples := []HistorySample{}
	for result.Next() {
		if len(samples) >= limit {
			break
		}
		record := result.Record()
		value, ok := toFloat(record.Value())
		if !ok {
			continue
		}
		samples = append(samples, HistorySample{
			Time:  record.Time(),
			Field: record.Field(),
			Value: value,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading result: %w", ErrQueryFailed, err)
	}

	return samples, nil
}

// toFloat flattens the dynamic Flux record value into a float64.
func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
