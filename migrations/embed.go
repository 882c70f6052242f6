// Package migrations embeds SQL migration files into the binary.
//
// SQLite migrations live at the root and are applied by the database
// package's own runner. PostgreSQL migrations live under postgres/ and are
// applied with goose.
package migrations

import (
	"embed"

	"github.com/nerrad567/servicedesk-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
	database.PostgresMigrationsFS = postgresFS
	database.PostgresMigrationsDir = "postgres"
}
