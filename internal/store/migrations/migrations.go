// Package migrations embeds the goose SQL migrations for the Nocel schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
