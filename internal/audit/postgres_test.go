package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

var pgAuditCols = []string{"id", "action", "entity_type", "entity_id", "user_id", "source", "details", "created_at"}

func TestPostgresRepository_Create(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresRepository(db)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return at }

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+audit_logs.+VALUES\s*\(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WithArgs(sqlmock.AnyArg(), "logout", "user", "usr-1", nil, SourceAuth, []byte(`{"revoked":1}`), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log := &AuditLog{Action: "logout", EntityType: "user", EntityID: "usr-1", Details: map[string]any{"revoked": 1}}
	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if log.ID == "" {
		t.Error("Create() should assign an ID")
	}
}

func TestPostgresRepository_CreateError(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresRepository(db)

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT\s+INTO\s+audit_logs`).WillReturnError(boom)

	err := repo.Create(context.Background(), &AuditLog{Action: "logout", EntityType: "user"})
	if !errors.Is(err, boom) {
		t.Errorf("Create() error = %v, want wrapped %v", err, boom)
	}
}

func TestPostgresRepository_ListWithFilter(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresRepository(db)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	created := since.Add(time.Hour)

	mock.ExpectQuery(`(?s)^SELECT COUNT\(\*\) FROM audit_logs WHERE action = \$1 AND user_id = \$2 AND created_at >= \$3`).
		WithArgs("login_succeeded", "usr-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)^SELECT .+ FROM audit_logs WHERE action = \$1 AND user_id = \$2 AND created_at >= \$3 ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("login_succeeded", "usr-1", since, 10, 0).
		WillReturnRows(sqlmock.NewRows(pgAuditCols).
			AddRow("aud-1", "login_succeeded", "user", "usr-1", "usr-1", SourceAuth, []byte(`{"role":"staff"}`), created))

	res, err := repo.List(context.Background(), Filter{
		Action: "login_succeeded",
		UserID: "usr-1",
		Since:  since,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Logs) != 1 {
		t.Fatalf("total=%d len=%d, want 1/1", res.Total, len(res.Logs))
	}
	got := res.Logs[0]
	if got.Details["role"] != "staff" || !got.CreatedAt.Equal(created) {
		t.Errorf("got %+v", got)
	}
}

func TestPostgresRepository_ListEmpty(t *testing.T) {
	db, mock := newPgMock(t)
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM audit_logs\s*$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(DefaultLimit, 0).
		WillReturnRows(sqlmock.NewRows(pgAuditCols))

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Logs == nil || len(res.Logs) != 0 {
		t.Errorf("Logs = %#v, want empty non-nil slice", res.Logs)
	}
}
