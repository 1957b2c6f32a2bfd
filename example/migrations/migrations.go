// Package migrations holds the ordered migration set. The same set is
// applied to the primary database and to every tenant database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
