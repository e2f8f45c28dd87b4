// Package migrations embeds the ledger schema so the server and the migrate
// CLI apply the same files without a path on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
