// Package migrations embeds the SQL schema migrations for the log store.
package migrations

import "embed"

// FS contains the SQL migration files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
