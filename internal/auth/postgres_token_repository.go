package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresTokenRepository implements TokenRepository on PostgreSQL.
// Expiry is compared against the application clock, not the database's.
type PostgresTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresTokenRepository creates a PostgreSQL-backed token repository.
func NewPostgresTokenRepository(db *sql.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db, now: time.Now}
}

// Insert stores a new refresh token record. Only the hash of the raw token
// is ever persisted.
func (r *PostgresTokenRepository) Insert(ctx context.Context, userID, tokenHash, deviceInfo string, expiresAt time.Time) (*RefreshToken, error) {
	t := &RefreshToken{
		ID:         "rt-" + uuid.NewString(),
		UserID:     userID,
		TokenHash:  tokenHash,
		DeviceInfo: deviceInfo,
		CreatedAt:  r.now().UTC(),
		ExpiresAt:  expiresAt.UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, device_info, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, nullString(t.DeviceInfo), t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// FindActiveByHash returns the unrevoked, unexpired record for a hash.
func (r *PostgresTokenRepository) FindActiveByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2`,
		tokenHash, r.now().UTC(),
	)
	t, err := scanPgToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Revoke marks a record revoked. It reports true only for the caller that
// flipped the row.
func (r *PostgresTokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	return r.revoke(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, id)
}

// RevokeByHash is Revoke keyed by token hash.
func (r *PostgresTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	return r.revoke(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`, tokenHash)
}

func (r *PostgresTokenRepository) revoke(ctx context.Context, query, key string) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, r.now().UTC(), key)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// RevokeAllForUser revokes every active record of a user and returns how
// many changed.
func (r *PostgresTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	now := r.now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1
		 WHERE user_id = $2 AND revoked_at IS NULL AND expires_at > $1`,
		now, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListActiveByUser returns a user's active sessions, newest first.
func (r *PostgresTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC`, userID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	tokens := []RefreshToken{}
	for rows.Next() {
		t, err := scanPgToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

// DeleteExpiredOrRevoked removes records that can no longer be exchanged.
func (r *PostgresTokenRepository) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL OR expires_at <= $1`,
		r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func scanPgToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var deviceInfo sql.NullString
	var revokedAt sql.NullTime

	if err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &deviceInfo,
		&t.ExpiresAt, &revokedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	if deviceInfo.Valid {
		t.DeviceInfo = deviceInfo.String
	}
	if revokedAt.Valid {
		ts := revokedAt.Time
		t.RevokedAt = &ts
	}
	return &t, nil
}
