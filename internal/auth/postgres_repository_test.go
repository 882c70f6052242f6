package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newPgMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var pgUserCols = []string{"id", "email", "name", "password_hash", "role", "created_at", "updated_at"}
var pgTokenCols = []string{"id", "user_id", "token_hash", "device_info", "expires_at", "revoked_at", "created_at"}

func TestPostgresUserRepository_CreateFirst(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^LOCK\s+TABLE\s+users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users\s*\(.+\)\s*SELECT\s+\$1.+WHERE\s+NOT\s+EXISTS\s*\(SELECT 1 FROM users\)`).
		WithArgs(sqlmock.AnyArg(), "root@x.com", "Root", "hash", "admin", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &User{Email: "root@x.com", Name: "Root", PasswordHash: "hash", Role: RoleAdmin}
	if err := repo.CreateFirst(context.Background(), u); err != nil {
		t.Fatalf("CreateFirst error: %v", err)
	}
	if u.ID == "" {
		t.Fatal("CreateFirst should assign an ID")
	}
}

func TestPostgresUserRepository_CreateFirst_NotEmpty(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^LOCK\s+TABLE\s+users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateFirst(context.Background(), &User{Email: "x@x.com", Name: "X", PasswordHash: "h", Role: RoleAdmin})
	if !errors.Is(err, ErrBootstrapNotAllowed) {
		t.Fatalf("want ErrBootstrapNotAllowed, got %v", err)
	}
}

func TestPostgresUserRepository_Create_UniqueViolation(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresUserRepository(db)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := repo.Create(context.Background(), &User{Email: "dup@x.com", Name: "D", PasswordHash: "h"})
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("want ErrUserAlreadyExists, got %v", err)
	}
}

func TestPostgresUserRepository_GetByEmail(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresUserRepository(db)
	now := time.Now().UTC()

	q := `(?s)^SELECT\s+id,\s*email,.+FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(pgUserCols).AddRow("usr-1", "a@x.com", "A", "hash", "staff", now, now))
	mock.ExpectQuery(q).WithArgs("ghost@x.com").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("boom@x.com").WillReturnError(errors.New("db down"))

	u, err := repo.GetByEmail(context.Background(), "  A@X.com ")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if u.ID != "usr-1" || u.Role != RoleStaff {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := repo.GetByEmail(context.Background(), "ghost@x.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}

	_, err = repo.GetByEmail(context.Background(), "boom@x.com")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgresUserRepository_Count(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresUserRepository(db)

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.Count(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("Count = (%d, %v), want (3, nil)", n, err)
	}
}

func TestPostgresTokenRepository_FindActiveByHash(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresTokenRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	q := `(?s)^SELECT\s+id,\s*user_id,.+FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1\s+AND\s+revoked_at\s+IS\s+NULL\s+AND\s+expires_at\s*>\s*\$2$`
	mock.ExpectQuery(q).WithArgs("h1", now).
		WillReturnRows(sqlmock.NewRows(pgTokenCols).AddRow("rt-1", "usr-1", "h1", "laptop", now.Add(time.Hour), nil, now))
	mock.ExpectQuery(q).WithArgs("h2", now).WillReturnError(sql.ErrNoRows)

	rec, err := repo.FindActiveByHash(context.Background(), "h1")
	if err != nil {
		t.Fatalf("FindActiveByHash error: %v", err)
	}
	if rec.ID != "rt-1" || rec.DeviceInfo != "laptop" || rec.RevokedAt != nil {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := repo.FindActiveByHash(context.Background(), "h2"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("want ErrRefreshTokenNotFound, got %v", err)
	}
}

func TestPostgresTokenRepository_Revoke(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresTokenRepository(db)

	q := `(?s)^UPDATE\s+refresh_tokens\s+SET\s+revoked_at\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+revoked_at\s+IS\s+NULL$`
	mock.ExpectExec(q).WithArgs(sqlmock.AnyArg(), "rt-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(sqlmock.AnyArg(), "rt-1").WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Revoke(context.Background(), "rt-1")
	if err != nil || !won {
		t.Fatalf("first Revoke = (%v, %v), want (true, nil)", won, err)
	}
	won, err = repo.Revoke(context.Background(), "rt-1")
	if err != nil || won {
		t.Fatalf("second Revoke = (%v, %v), want (false, nil)", won, err)
	}
}

func TestPostgresTokenRepository_RevokeAllForUser(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresTokenRepository(db)

	mock.ExpectExec(`(?s)^UPDATE\s+refresh_tokens\s+SET\s+revoked_at\s*=\s*\$1\s+WHERE\s+user_id\s*=\s*\$2`).
		WithArgs(sqlmock.AnyArg(), "usr-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RevokeAllForUser(context.Background(), "usr-1")
	if err != nil || n != 4 {
		t.Fatalf("RevokeAllForUser = (%d, %v), want (4, nil)", n, err)
	}
}

func TestPostgresTokenRepository_InsertAndList(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresTokenRepository(db)
	now := time.Now().UTC()
	revoked := now.Add(-time.Minute)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+refresh_tokens`).
		WithArgs(sqlmock.AnyArg(), "usr-1", "h1", "phone", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)^SELECT\s+id,.+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1.+ORDER\s+BY\s+created_at\s+DESC$`).
		WithArgs("usr-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(pgTokenCols).
			AddRow("rt-2", "usr-1", "h2", nil, now.Add(time.Hour), revoked, now).
			AddRow("rt-1", "usr-1", "h1", "phone", now.Add(time.Hour), nil, now))

	rec, err := repo.Insert(context.Background(), "usr-1", "h1", "phone", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if rec.ID == "" || rec.TokenHash != "h1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	list, err := repo.ListActiveByUser(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("ListActiveByUser error: %v", err)
	}
	if len(list) != 2 || list[0].RevokedAt == nil || list[1].DeviceInfo != "phone" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestPostgresTokenRepository_DeleteExpiredOrRevoked(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresTokenRepository(db)

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+revoked_at\s+IS\s+NOT\s+NULL\s+OR\s+expires_at\s*<=\s*\$1$`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpiredOrRevoked(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("DeleteExpiredOrRevoked = (%d, %v), want (7, nil)", n, err)
	}
}
