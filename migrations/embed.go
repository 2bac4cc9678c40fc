// Package migrations holds the users store schema, applied in file name order
// by "homerev-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
