package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/servicedesk-core/internal/audit"
	"github.com/nerrad567/servicedesk-core/internal/auth"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/mqtt"
)

// Audit entity types.
const (
	EntityUser    = "user"
	EntitySession = "session"
)

// AuditSink writes each event as an audit_logs row.
type AuditSink struct {
	Repo audit.Repository
}

// Name implements Sink.
func (AuditSink) Name() string { return "audit" }

// Write implements Sink.
func (s AuditSink) Write(ctx context.Context, ev auth.Event) error {
	if err := s.Repo.Create(ctx, AuditEntry(ev)); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// AuditEntry converts an event to an audit log row.
func AuditEntry(ev auth.Event) *audit.AuditLog {
	entity := EntitySession
	switch ev.Kind {
	case auth.EventLoginSucceeded, auth.EventLoginFailed, auth.EventBootstrap:
		entity = EntityUser
	}

	details := map[string]any{}
	if ev.Email != "" {
		details["email"] = ev.Email
	}
	if ev.Role != "" {
		details["role"] = string(ev.Role)
	}
	if ev.DeviceInfo != "" {
		details["deviceInfo"] = ev.DeviceInfo
	}
	if ev.Reason != "" {
		details["reason"] = ev.Reason
	}
	if ev.Kind == auth.EventLogout || ev.Kind == auth.EventLogoutAll {
		details["revoked"] = ev.Count
	}
	if len(details) == 0 {
		details = nil
	}

	return &audit.AuditLog{
		Action:     string(ev.Kind),
		EntityType: entity,
		EntityID:   ev.UserID,
		UserID:     ev.UserID,
		Source:     audit.SourceAuth,
		Details:    details,
		CreatedAt:  ev.At,
	}
}

// Publisher is the part of *mqtt.Client the MQTT sink uses.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTSink publishes each event as JSON on <prefix>/auth/events/<kind>.
type MQTTSink struct {
	Publisher Publisher
	Topics    mqtt.Topics
}

// Name implements Sink.
func (MQTTSink) Name() string { return "mqtt" }

// Detached implements Detached. A publish can wait on the broker for the
// full sink timeout.
func (MQTTSink) Detached() bool { return true }

// Write implements Sink.
func (s MQTTSink) Write(_ context.Context, ev auth.Event) error {
	if err := s.Publisher.PublishJSON(s.Topics.AuthEvent(string(ev.Kind)), ev); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Kind, err)
	}
	return nil
}

// MetricsWriter is the part of *influxdb.Client the metrics sink uses.
type MetricsWriter interface {
	WriteAuthEvent(kind, role, reason string, at time.Time)
}

// MetricsSink counts events in InfluxDB. Writes are batched and asynchronous,
// so Write never fails.
type MetricsSink struct {
	Writer MetricsWriter
}

// Name implements Sink.
func (MetricsSink) Name() string { return "metrics" }

// Write implements Sink.
func (s MetricsSink) Write(_ context.Context, ev auth.Event) error {
	s.Writer.WriteAuthEvent(string(ev.Kind), string(ev.Role), ev.Reason, ev.At)
	return nil
}
