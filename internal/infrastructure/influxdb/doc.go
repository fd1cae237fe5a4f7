// Package influxdb records the bridge's telemetry: device state
// samples on every poll delta and bridged command, availability
// transitions, and poll cycle statistics. The same client serves the
// Flux query behind the device history endpoint.
//
// Writes are non-blocking and batched per the configured batch_size
// and flush_interval; failures surface through the SetOnError callback
// instead of return values, because by the time a batch fails the
// callers are long gone. Everything here is best effort and the whole
// component is optional: with telemetry disabled the bridge runs
// normally and the history endpoint reports unavailable.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceState(influxdb.StatePoint{
//		DeviceID: "c7f2a91e", NetworkID: "net-1", Power: true,
//	})
//
// All methods are safe for concurrent use.
package influxdb
