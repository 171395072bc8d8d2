// Package migrations embeds the SQLite schema for predictions storage.
package migrations

import "embed"

// FS contains embedded SQLite migrations for predictions storage.
//
//go:embed *.sql
var FS embed.FS
