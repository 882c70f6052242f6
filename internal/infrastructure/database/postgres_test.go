package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

//go:embed testdata/postgres/*.sql
var testPostgresFS embed.FS

func withPostgresMigrations(t *testing.T, fsys embed.FS, dir string) {
	t.Helper()
	origFS, origDir := PostgresMigrationsFS, PostgresMigrationsDir
	PostgresMigrationsFS, PostgresMigrationsDir = fsys, dir
	t.Cleanup(func() {
		PostgresMigrationsFS, PostgresMigrationsDir = origFS, origDir
	})
}

func newMockPostgresDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() }) //nolint:errcheck // Test cleanup
	return &DB{DB: sqlDB, driver: DriverPostgres}
}

func TestOpen_Drivers(t *testing.T) {
	t.Run("unsupported driver", func(t *testing.T) {
		if _, err := Open(Config{Driver: "mysql"}); err == nil {
			t.Error("Open() expected error for unsupported driver")
		}
	})

	t.Run("postgres without DSN", func(t *testing.T) {
		_, err := Open(Config{Driver: DriverPostgres})
		if !errors.Is(err, ErrNoDSN) {
			t.Errorf("Open() error = %v, want ErrNoDSN", err)
		}
	})

	t.Run("empty driver means sqlite", func(t *testing.T) {
		db := openTestDB(t)
		defer db.Close() //nolint:errcheck // Test cleanup
		if db.Driver() != DriverSQLite {
			t.Errorf("Driver() = %q, want %q", db.Driver(), DriverSQLite)
		}
	})
}

func TestMigrate_PostgresUsesGoose(t *testing.T) {
	withPostgresMigrations(t, testPostgresFS, "testdata/postgres")

	var gotDir string
	orig := gooseUp
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	t.Cleanup(func() { gooseUp = orig })

	db := newMockPostgresDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if gotDir != "testdata/postgres" {
		t.Errorf("goose dir = %q, want %q", gotDir, "testdata/postgres")
	}
}

func TestMigrate_PostgresPropagatesError(t *testing.T) {
	withPostgresMigrations(t, testPostgresFS, "testdata/postgres")

	boom := errors.New("boom")
	orig := gooseUp
	gooseUp = func(context.Context, *sql.DB, string) error { return boom }
	t.Cleanup(func() { gooseUp = orig })

	db := newMockPostgresDB(t)
	if err := db.Migrate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Migrate() error = %v, want wrapped boom", err)
	}
}

func TestMigrate_PostgresNoMigrations(t *testing.T) {
	var empty embed.FS
	withPostgresMigrations(t, empty, ".")

	called := false
	orig := gooseUp
	gooseUp = func(context.Context, *sql.DB, string) error {
		called = true
		return nil
	}
	t.Cleanup(func() { gooseUp = orig })

	db := newMockPostgresDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if called {
		t.Error("goose should not run without embedded migrations")
	}
}

func TestMigrateDown_Postgres(t *testing.T) {
	withPostgresMigrations(t, testPostgresFS, "testdata/postgres")

	called := false
	orig := gooseDown
	gooseDown = func(context.Context, *sql.DB, string) error {
		called = true
		return nil
	}
	t.Cleanup(func() { gooseDown = orig })

	db := newMockPostgresDB(t)
	if err := db.MigrateDown(context.Background()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if !called {
		t.Error("expected goose down to run")
	}
}

func TestPostgresSchemaVersion(t *testing.T) {
	withPostgresMigrations(t, testPostgresFS, "testdata/postgres")

	orig := gooseVersion
	gooseVersion = func(context.Context, *sql.DB) (int64, error) { return 2, nil }
	t.Cleanup(func() { gooseVersion = orig })

	db := newMockPostgresDB(t)
	v, err := db.PostgresSchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("PostgresSchemaVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}

	sqliteDB := openTestDB(t)
	defer sqliteDB.Close() //nolint:errcheck // Test cleanup
	if _, err := sqliteDB.PostgresSchemaVersion(context.Background()); err == nil {
		t.Error("expected error for sqlite connection")
	}
}
