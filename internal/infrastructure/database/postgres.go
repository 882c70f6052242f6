package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
)

// PostgreSQL pool settings.
const (
	pgMaxOpenConns    = 20
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = time.Hour
)

// PostgresMigrationsFS holds goose-format migrations for PostgreSQL.
// It is set by the migrations package, like MigrationsFS.
var PostgresMigrationsFS embed.FS

// PostgresMigrationsDir is the directory within PostgresMigrationsFS.
var PostgresMigrationsDir = "postgres"

// ErrNoDSN is returned when the postgres driver is selected without a DSN.
var ErrNoDSN = errors.New("postgres DSN is required")

// gooseUp and gooseDown are seams for testing without a live server.
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	}
	gooseDown = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	}
	gooseVersion = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

// OpenPostgres connects through the pgx stdlib driver and verifies the
// connection with a ping.
func OpenPostgres(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(pgMaxOpenConns)
	sqlDB.SetMaxIdleConns(pgMaxIdleConns)
	sqlDB.SetConnMaxLifetime(pgConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	return &DB{DB: sqlDB, driver: DriverPostgres}, nil
}

func preparePostgresGoose() (bool, error) {
	var empty embed.FS
	if PostgresMigrationsFS == empty {
		return false, nil
	}
	goose.SetBaseFS(PostgresMigrationsFS)
	if err := goose.SetDialect("pgx"); err != nil {
		return false, fmt.Errorf("setting goose dialect: %w", err)
	}
	return true, nil
}

// migratePostgres applies all pending goose migrations.
func (db *DB) migratePostgres(ctx context.Context) error {
	ok, err := preparePostgresGoose()
	if err != nil || !ok {
		return err
	}
	if err := gooseUp(ctx, db.DB, PostgresMigrationsDir); err != nil {
		return fmt.Errorf("applying postgres migrations: %w", err)
	}
	return nil
}

// migratePostgresDown rolls back the most recent goose migration.
func (db *DB) migratePostgresDown(ctx context.Context) error {
	ok, err := preparePostgresGoose()
	if err != nil || !ok {
		return err
	}
	if err := gooseDown(ctx, db.DB, PostgresMigrationsDir); err != nil {
		return fmt.Errorf("rolling back postgres migration: %w", err)
	}
	return nil
}

// PostgresSchemaVersion returns the goose version recorded in the database.
func (db *DB) PostgresSchemaVersion(ctx context.Context) (int64, error) {
	if db.driver != DriverPostgres {
		return 0, fmt.Errorf("schema version: driver is %q", db.driver)
	}
	if _, err := preparePostgresGoose(); err != nil {
		return 0, err
	}
	v, err := gooseVersion(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("reading postgres schema version: %w", err)
	}
	return v, nil
}
