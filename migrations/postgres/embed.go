// Package migrations embeds SQL migration files for PostgreSQL.
package migrations

import "embed"

// CoreFS contains the goose migrations for users and sessions.
//
//go:embed core/*.sql
var CoreFS embed.FS

// CoreDir is the directory within CoreFS where migrations live.
const CoreDir = "core"
