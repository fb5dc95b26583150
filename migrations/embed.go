// Package migrations embeds the hub's SQL schema migrations into the binary.
//
// Importing this package for side effects registers the files with the
// database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/venthub/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}
