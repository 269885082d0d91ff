// Package migrations embeds SQL migration files into the binary.
//
// Import it for its side effect wherever the database is migrated:
//
//	import _ "github.com/nerrad567/mqtt2graphite/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/mqtt2graphite/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
