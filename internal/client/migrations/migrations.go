// Package migrations embeds the SQL migrations for the client database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
