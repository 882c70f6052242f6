// Package events fans session lifecycle events out to the audit log, the
// MQTT broker and InfluxDB.
//
// Fanout implements auth.EventRecorder. Each sink is called in turn; a sink
// error or panic is logged and never reaches the auth operation that
// produced the event.
package events
