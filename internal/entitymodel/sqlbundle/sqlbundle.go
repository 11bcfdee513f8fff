// Package sqlbundle exposes the embedded driver DDL bundles for SQL backends.
package sqlbundle

import (
	"strings"

	sqldocs "romekv/docs/schema/sql"
)

// Tables lists the tables every SQL bundle creates.
var Tables = []string{"records", "record_keys", "key_counters"}

// SQLite returns the SQLite DDL for the driver tables.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL for the driver tables.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements breaks a DDL script into statements, each ending at its
// semicolon. Full-line "--" comments and blank lines are dropped; a final
// statement without a semicolon is kept as is. The bundles carry no string
// literals, so semicolons always terminate.
func SplitStatements(ddl string) []string {
	var body strings.Builder
	for _, line := range strings.Split(ddl, "\n") {
		line = strings.TrimRight(line, "\r")
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var stmts []string
	for _, part := range strings.SplitAfter(body.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
