// Package migrations compiles the SQL schema files into the binary so
// a deployment never depends on loose .sql files sitting next to the
// executable. Importers pull it in blank, for the side effect alone.
package migrations

import (
	"embed"

	"github.com/nerrad567/connectmesh-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var schemaFS embed.FS

func init() {
	// The .sql files live at the root of the embedded tree.
	database.MigrationsFS = schemaFS
	database.MigrationsDir = "."
}
