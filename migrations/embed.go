// Package migrations embeds the ordered SQL schema files.
package migrations

import "embed"

// FS holds every NNNN_description.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
