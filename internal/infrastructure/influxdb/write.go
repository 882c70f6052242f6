package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this service.
const (
	MeasurementAuthEvents = "auth_events"
	MeasurementTokenSweep = "refresh_token_sweep"
)

// WriteAuthEvent records one session lifecycle event.
//
// Tags are low cardinality: the event kind, the role involved (empty for
// failures before a user is known) and an optional reason such as
// "wrong_password". User IDs and emails are never tags.
//
// Example:
//
//	client.WriteAuthEvent("login_failed", "", "unknown_email", time.Now())
func (c *Client) WriteAuthEvent(kind, role, reason string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"kind": kind}
	if role != "" {
		tags["role"] = role
	}
	if reason != "" {
		tags["reason"] = reason
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementAuthEvents,
		tags,
		map[string]any{"count": int64(1)},
		at,
	))
}

// WriteTokenSweep records how many expired or revoked refresh tokens one
// sweep deleted.
func (c *Client) WriteTokenSweep(deleted int64, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementTokenSweep,
		nil,
		map[string]any{"deleted": deleted},
		at,
	))
}

// WritePoint writes a custom point timestamped now.
//
// Example:
//
//	client.WritePoint("api_requests",
//	    map[string]string{"route": "login"},
//	    map[string]any{"duration_ms": 12.5})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
