// Package migrations embeds the checkpoint journal schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
