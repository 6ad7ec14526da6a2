// Package migrations embeds the SQL schema owned by the access service.
package migrations

import "embed"

// Files holds the ordered migration scripts.
//
//go:embed *.sql
var Files embed.FS
