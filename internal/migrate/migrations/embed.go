// Package migrations embeds the audit schema SQL files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
