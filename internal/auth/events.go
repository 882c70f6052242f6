package auth

import (
	"context"
	"time"
)

// EventKind names a session lifecycle event.
type EventKind string

const (
	EventLoginSucceeded  EventKind = "login_succeeded"
	EventLoginFailed     EventKind = "login_failed"
	EventTokenRefreshed  EventKind = "token_refreshed"
	EventRefreshRejected EventKind = "refresh_rejected"
	EventLogout          EventKind = "logout"
	EventLogoutAll       EventKind = "logout_all"
	EventBootstrap       EventKind = "bootstrap"
)

// Event describes something that happened to a session. It never carries a
// raw token, password or hash.
type Event struct {
	Kind       EventKind `json:"kind"`
	UserID     string    `json:"userId,omitempty"`
	Email      string    `json:"email,omitempty"`
	Role       Role      `json:"role,omitempty"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Count      int64     `json:"count,omitempty"`
	At         time.Time `json:"at"`
}

// EventRecorder receives session events. Implementations must not block the
// caller for long and must not fail the operation that produced the event.
type EventRecorder interface {
	Record(ctx context.Context, ev Event)
}

// EventRecorderFunc adapts a function to EventRecorder.
type EventRecorderFunc func(ctx context.Context, ev Event)

func (f EventRecorderFunc) Record(ctx context.Context, ev Event) { f(ctx, ev) }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
