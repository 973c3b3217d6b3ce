// Package influxdb writes sensor measurements to a local InfluxDB v2 server.
//
// The sink is optional (influxdb.enabled). Every measurement the agent
// publishes upstream can also be kept locally for dashboards on the device
// or the site network.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // sink switched off
//	}
//	defer client.Close()
//	client.WriteSample(influxdb.Sample{DeviceID: serial, Fragment: "c8y_CPUMeasurement", Series: "usage", Unit: "%", Value: 12.5})
package influxdb
