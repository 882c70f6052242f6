package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository persists refresh token records.
//
// Revoke and RevokeByHash are conditional: they only change a row that is not
// already revoked and report whether this call made the change. Refresh uses
// that result to decide which of several concurrent callers wins a rotation.
type TokenRepository interface {
	Insert(ctx context.Context, userID, tokenHash, deviceInfo string, expiresAt time.Time) (*RefreshToken, error)
	FindActiveByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error)
	DeleteExpiredOrRevoked(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db, now: time.Now}
}

const tokenColumns = "id, user_id, token_hash, device_info, expires_at, revoked_at, created_at"

// Insert stores a new active refresh token record.
func (r *SQLiteTokenRepository) Insert(ctx context.Context, userID, tokenHash, deviceInfo string, expiresAt time.Time) (*RefreshToken, error) {
	t := &RefreshToken{
		ID:         "rt-" + uuid.NewString(),
		UserID:     userID,
		TokenHash:  tokenHash,
		DeviceInfo: deviceInfo,
		CreatedAt:  r.now().UTC().Truncate(time.Microsecond),
		ExpiresAt:  expiresAt.UTC().Truncate(time.Microsecond),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+tokenColumns+`) VALUES (?, ?, ?, ?, ?, NULL, ?)`,
		t.ID, t.UserID, t.TokenHash, nullString(t.DeviceInfo),
		formatTime(t.ExpiresAt), formatTime(t.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting refresh token: %w", err)
	}
	return t, nil
}

// FindActiveByHash returns the record for tokenHash if it is neither revoked
// nor expired. Every other case is ErrRefreshTokenNotFound.
func (r *SQLiteTokenRepository) FindActiveByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, formatTime(r.now()),
	)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	return t, nil
}

// Revoke marks a record revoked if it is not already. It returns true only
// for the call that performed the transition.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		formatTime(r.now()), id)
	if err != nil {
		return false, fmt.Errorf("revoking refresh token: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n == 1, nil
}

// RevokeByHash is Revoke keyed by token hash.
func (r *SQLiteTokenRepository) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL",
		formatTime(r.now()), tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoking refresh token by hash: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n == 1, nil
}

// RevokeAllForUser revokes every active record of a user and returns how
// many were revoked.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	now := formatTime(r.now())
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoking all tokens for user: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// ListActiveByUser returns all non-revoked, non-expired tokens for a user,
// newest first.
func (r *SQLiteTokenRepository) ListActiveByUser(ctx context.Context, userID string) ([]RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`, userID, formatTime(r.now()))
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	tokens := []RefreshToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpiredOrRevoked removes records that can never be used again.
func (r *SQLiteTokenRepository) DeleteExpiredOrRevoked(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE revoked_at IS NOT NULL OR expires_at <= ?",
		formatTime(r.now()))
	if err != nil {
		return 0, fmt.Errorf("deleting stale tokens: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

func scanToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var deviceInfo, revokedAt sql.NullString
	var expiresAt, createdAt string

	if err := s.Scan(&t.ID, &t.UserID, &t.TokenHash, &deviceInfo,
		&expiresAt, &revokedAt, &createdAt); err != nil {
		return nil, err
	}

	if deviceInfo.Valid {
		t.DeviceInfo = deviceInfo.String
	}
	if revokedAt.Valid {
		ts := parseTime(revokedAt.String)
		t.RevokedAt = &ts
	}
	t.ExpiresAt = parseTime(expiresAt)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}
