package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Sample is one sensor reading destined for the sink.
type Sample struct {
	DeviceID string
	Fragment string
	Series   string
	Unit     string
	Value    float64
	Time     time.Time
}

// WriteSample queues one measurement. The write is non-blocking.
//
// Layout: measurement=<fragment>, tags device_id/series/unit, field value.
//
// Example:
//
//	client.WriteSample(influxdb.Sample{
//	    DeviceID: "0001", Fragment: "c8y_MemoryMeasurement",
//	    Series: "used", Unit: "%", Value: 41.7, Time: time.Now(),
//	})
func (c *Client) WriteSample(s Sample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(samplePoint(s))
}

func samplePoint(s Sample) *write.Point {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"device_id": s.DeviceID,
		"series":    s.Series,
	}
	if s.Unit != "" {
		tags["unit"] = s.Unit
	}

	return write.NewPoint(
		s.Fragment,
		tags,
		map[string]interface{}{
			"value": s.Value,
		},
		ts,
	)
}
