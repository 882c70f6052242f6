package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresRepository stores audit logs in PostgreSQL.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository creates a new PostgreSQL audit log repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func encodePgTime(t time.Time) any { return t }

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *PostgresRepository) Create(ctx context.Context, log *AuditLog) error {
	prepare(log, r.now())

	var details []byte
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = b
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID), nullableString(log.UserID),
		log.Source, details, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// List returns audit logs matching the filter, ordered by most recent first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.normalise()
	where, args := filter.where(dollar, encodePgTime)

	countQuery := "SELECT COUNT(*) FROM audit_logs " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM audit_logs %s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s", //nolint:gosec // WHERE built from parameterised conditions
		selectColumns, where, dollar(len(args)+1), dollar(len(args)+2))
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var log AuditLog
		var entityID, userID sql.NullString
		var details []byte

		if err := rows.Scan(&log.ID, &log.Action, &log.EntityType,
			&entityID, &userID, &log.Source, &details, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		log.EntityID = entityID.String
		log.UserID = userID.String
		if len(details) > 0 {
			log.Details = decodeDetails(details)
		}
		log.CreatedAt = log.CreatedAt.UTC()

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
