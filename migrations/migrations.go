// Package migrations embeds the sequential SQL schema migrations applied by
// cmd/migrate and at server startup. Files are NNNN_name.up.sql/.down.sql
// pairs and target PostgreSQL.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
