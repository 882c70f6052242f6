// Package audit stores and queries the audit_logs table, the durable record
// of session lifecycle events.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// SourceAuth is the source recorded for entries written by the session service.
const SourceAuth = "auth"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string    // optional: e.g. login_failed, logout_all
	EntityType string    // optional: e.g. user, session
	EntityID   string    // optional: a specific entity
	UserID     string    // optional: entries about one user
	Since      time.Time // optional: entries created at or after this time
	Limit      int       // default 50, max 200
	Offset     int       // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// prepare fills in the generated fields of a new entry.
func prepare(log *AuditLog, now time.Time) {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	log.CreatedAt = log.CreatedAt.UTC().Truncate(time.Microsecond)
	if log.Source == "" {
		log.Source = SourceAuth
	}
}

// normalise clamps paging values into range.
func (f Filter) normalise() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// where builds a parameterised WHERE clause. placeholder returns the
// driver's marker for the n-th (1-based) argument. since is passed through
// encodeTime so each driver stores and compares times its own way.
func (f Filter) where(placeholder func(n int) string, encodeTime func(time.Time) any) (string, []any) {
	var conditions []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+placeholder(len(args)))
	}

	if f.Action != "" {
		add("action = ", f.Action)
	}
	if f.EntityType != "" {
		add("entity_type = ", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = ", f.EntityID)
	}
	if f.UserID != "" {
		add("user_id = ", f.UserID)
	}
	if !f.Since.IsZero() {
		add("created_at >= ", encodeTime(f.Since.UTC()))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// nullableString returns nil for empty strings so nullable columns hold NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
