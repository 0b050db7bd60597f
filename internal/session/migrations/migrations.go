// Package migrations embeds the SQLite schema for the session store.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
