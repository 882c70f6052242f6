package audit

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the audit_logs migration applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "audit-test.db")
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*_audit_logs.up.sql"))
	if err != nil || len(files) != 1 {
		t.Fatalf("locating audit migration: %v (found %d)", err, len(files))
	}
	stmt, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("reading migration: %v", err)
	}
	if _, err := db.Exec(string(stmt)); err != nil {
		t.Fatalf("applying migration: %v", err)
	}
	return db
}

// newTestRepo returns a repository whose clock advances one second per entry.
func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo := NewSQLiteRepository(testDB(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	repo.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return repo
}

func mustCreate(t *testing.T, repo Repository, log *AuditLog) {
	t.Helper()
	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestSQLiteRepository_CreateDefaults(t *testing.T) {
	repo := newTestRepo(t)

	log := &AuditLog{Action: "login_succeeded", EntityType: "user", EntityID: "usr-1"}
	mustCreate(t, repo, log)

	if log.ID == "" || log.ID[:4] != "aud-" {
		t.Errorf("ID = %q, want aud- prefix", log.ID)
	}
	if log.Source != SourceAuth {
		t.Errorf("Source = %q, want %q", log.Source, SourceAuth)
	}
	if log.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	created := &AuditLog{
		Action:     "logout_all",
		EntityType: "user",
		EntityID:   "usr-1",
		UserID:     "usr-1",
		Details:    map[string]any{"count": float64(3)},
	}
	mustCreate(t, repo, created)

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Logs) != 1 {
		t.Fatalf("List() total=%d len=%d, want 1/1", res.Total, len(res.Logs))
	}

	got := res.Logs[0]
	if got.ID != created.ID || got.Action != "logout_all" || got.UserID != "usr-1" {
		t.Errorf("got %+v", got)
	}
	if got.Details["count"] != float64(3) {
		t.Errorf("Details = %v", got.Details)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
}

func TestSQLiteRepository_NullableColumns(t *testing.T) {
	repo := newTestRepo(t)
	mustCreate(t, repo, &AuditLog{Action: "login_failed", EntityType: "user"})

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := res.Logs[0]
	if got.EntityID != "" || got.UserID != "" || got.Details != nil {
		t.Errorf("expected empty optional fields, got %+v", got)
	}
}

func TestSQLiteRepository_ListFiltersAndOrder(t *testing.T) {
	repo := newTestRepo(t)

	mustCreate(t, repo, &AuditLog{Action: "login_succeeded", EntityType: "user", UserID: "usr-1"})
	mustCreate(t, repo, &AuditLog{Action: "login_failed", EntityType: "user"})
	mustCreate(t, repo, &AuditLog{Action: "login_succeeded", EntityType: "user", UserID: "usr-2"})
	mustCreate(t, repo, &AuditLog{Action: "logout", EntityType: "session", UserID: "usr-1"})

	ctx := context.Background()

	tests := []struct {
		name    string
		filter  Filter
		total   int
		actions []string
	}{
		{name: "all newest first", filter: Filter{}, total: 4,
			actions: []string{"logout", "login_succeeded", "login_failed", "login_succeeded"}},
		{name: "by action", filter: Filter{Action: "login_succeeded"}, total: 2,
			actions: []string{"login_succeeded", "login_succeeded"}},
		{name: "by user", filter: Filter{UserID: "usr-1"}, total: 2,
			actions: []string{"logout", "login_succeeded"}},
		{name: "by entity type", filter: Filter{EntityType: "session"}, total: 1,
			actions: []string{"logout"}},
		{name: "combined", filter: Filter{Action: "login_succeeded", UserID: "usr-2"}, total: 1,
			actions: []string{"login_succeeded"}},
		{name: "since", filter: Filter{Since: time.Date(2026, 3, 1, 9, 0, 3, 0, time.UTC)}, total: 2,
			actions: []string{"logout", "login_succeeded"}},
		{name: "no match", filter: Filter{Action: "bootstrap"}, total: 0, actions: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.total {
				t.Errorf("Total = %d, want %d", res.Total, tt.total)
			}
			if len(res.Logs) != len(tt.actions) {
				t.Fatalf("len(Logs) = %d, want %d", len(res.Logs), len(tt.actions))
			}
			for i, want := range tt.actions {
				if res.Logs[i].Action != want {
					t.Errorf("Logs[%d].Action = %q, want %q", i, res.Logs[i].Action, want)
				}
			}
		})
	}
}

func TestSQLiteRepository_Pagination(t *testing.T) {
	repo := newTestRepo(t)
	for range 5 {
		mustCreate(t, repo, &AuditLog{Action: "token_refreshed", EntityType: "session"})
	}

	res, err := repo.List(context.Background(), Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Logs) != 1 {
		t.Errorf("total=%d len=%d, want 5/1", res.Total, len(res.Logs))
	}
	if res.Limit != 2 || res.Offset != 4 {
		t.Errorf("limit/offset = %d/%d, want 2/4", res.Limit, res.Offset)
	}
}

func TestFilter_Normalise(t *testing.T) {
	tests := []struct {
		name       string
		in         Filter
		wantLimit  int
		wantOffset int
	}{
		{"defaults", Filter{}, DefaultLimit, 0},
		{"clamped high", Filter{Limit: 1000}, MaxLimit, 0},
		{"negative offset", Filter{Limit: 10, Offset: -3}, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalise()
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
				t.Errorf("normalise() = %d/%d, want %d/%d", got.Limit, got.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
