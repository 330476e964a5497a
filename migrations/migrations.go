// Package migrations embeds the SQL schema applied by `scenariobot migrate`.
package migrations

import "embed"

// FS holds the numbered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
