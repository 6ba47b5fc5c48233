// ABOUTME: Embedded goose migrations for the chorale SQLite schema
// ABOUTME: Files are applied in version order by store.NewSQLiteStore

package migrations

import "embed"

// FS holds the numbered SQL migration files.
//
//go:embed *.sql
var FS embed.FS
