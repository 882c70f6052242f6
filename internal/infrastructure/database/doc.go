// Package database provides the SQL connection behind the session store.
//
// Two drivers are supported:
//   - sqlite (default): a single file in WAL mode, STRICT tables, one
//     writer connection, migrations applied by this package's runner
//   - postgres: pgx through database/sql, migrations applied by goose
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite file permissions are set to 0600 (owner read/write only)
//   - Passwords and refresh tokens are stored as digests, never plaintext
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Driver: cfg.Database.Driver,
//	    Path:   cfg.Database.Path,
//	    DSN:    cfg.Database.DSN,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// SQLite migrations are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. PostgreSQL migrations use goose's numbered single-file
// format with -- +goose Up / Down sections. Both sets are embedded by the
// migrations package at the repository root.
package database
