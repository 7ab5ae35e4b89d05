// Package migrations embeds the SQL schema applied by `warden migrate` and integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
