// Package influxdb records session metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched metric writing and health monitoring.
//
// # Measurements
//
//   - auth_events: one point per session event, tagged by kind, role and
//     failure reason, with field count=1
//   - refresh_token_sweep: rows removed by each refresh token sweep
//
// User identifiers are never written as tags.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent("login_succeeded", "staff", "", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// callback set with SetOnError. Connection and health check errors are
// returned directly.
package influxdb
