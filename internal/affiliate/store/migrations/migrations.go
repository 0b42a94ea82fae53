// Package migrations embeds the affiliate schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
