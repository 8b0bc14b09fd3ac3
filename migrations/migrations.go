// Package migrations embeds the SQL migrations for the checkout snapshot
// store.
package migrations

import "embed"

// FS holds every *.up.sql migration, applied in lexical order.
//
//go:embed *.up.sql
var FS embed.FS
