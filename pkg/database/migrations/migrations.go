// Package migrations embeds the SQL migrations of the mirror database.
package migrations

import "embed"

// FS contains the migration files.
//
//go:embed *.sql
var FS embed.FS
