// Package migrations embeds the collector schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
