// Package sqldocs exposes the driver table DDL directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the key-value driver tables.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the key-value driver tables.
//
//go:embed postgres.sql
var Postgres string
