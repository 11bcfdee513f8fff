package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(SQLite())
	if len(stmts) != 5 {
		t.Fatalf("expected 5 sqlite statements, got %d", len(stmts))
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(strings.TrimSpace(stmt), "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(strings.TrimSpace(stmt), ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- header\nCREATE TABLE a (x INT);\n\nSELECT 1")
	if len(stmts) != 2 || stmts[1] != "SELECT 1" {
		t.Fatalf("unexpected statements %q", stmts)
	}
}

func TestSplitStatementsSplitsSharedLines(t *testing.T) {
	stmts := SplitStatements("CREATE TABLE a (x INT); CREATE TABLE b (y INT);\r\n  -- trailing note\r\n")
	if len(stmts) != 2 || stmts[0] != "CREATE TABLE a (x INT);" || stmts[1] != "CREATE TABLE b (y INT);" {
		t.Fatalf("unexpected statements %q", stmts)
	}
}

func TestBundlesCreateEveryTable(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		for _, table := range Tables {
			if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				t.Fatalf("%s bundle lacks table %s", name, table)
			}
		}
	}
	if !strings.Contains(Postgres(), "JSONB") {
		t.Fatal("expected postgres payloads stored as JSONB")
	}
}
