package influxdb

import "errors"

// Sentinel errors, matched with errors.Is. Asynchronous write failures
// do not surface here; they go through the SetOnError callback.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrQueryFailed covers rejected and failed history queries.
	ErrQueryFailed = errors.New("influxdb: query failed")

	// ErrDisabled is returned by Connect when telemetry is switched
	// off in the configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
