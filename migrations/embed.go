// Package migrations embeds the goose SQL migrations so binaries and tests can
// apply the schema without a checkout on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
