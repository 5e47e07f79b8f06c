// Package migrations embeds the Postgres schema for the conversation store.
package migrations

import "embed"

// FS holds the versioned migration files.
//
//go:embed *.sql
var FS embed.FS
