// Package testutil provides a fake SQL database for postgres driver tests.
// It understands the statement shapes the driver issues: single-row inserts
// with an optional ON CONFLICT clause, deletes by one column and full-table
// selects. Anything else (DDL) is recorded and accepted.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
)

var (
	insertStmt = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+(\w+)\s*\(([^)]*)\)\s*VALUES\s*\([^)]*\)(?:\s*ON\s+CONFLICT\s*\((\w+)\)\s*DO\s+(NOTHING|UPDATE))?`)
	deleteStmt = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(\w+)\s+WHERE\s+(\w+)\s*=\s*\$1\s*$`)
	selectStmt = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+(\w+)`)

	registered atomic.Int64
)

// StubConn is the single connection behind a stub database. Tables maps a
// table name to its rows in insertion order.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailExec   bool
	FailBegin  bool
	FailTables map[string]bool
}

// NewStubDB registers a fresh stub driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("romekv-stub-%d", registered.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Rows returns the rows currently stored in table.
func (c *StubConn) Rows(table string) []map[string]any { return c.Tables[table] }

func (c *StubConn) failing(table string) error {
	if c.FailTables[table] {
		return fmt.Errorf("stub: table %s unavailable", table)
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	if m := insertStmt.FindStringSubmatch(query); m != nil {
		return c.insert(strings.ToLower(m[1]), columns(m[2]), strings.ToLower(m[3]), strings.ToUpper(m[4]), args)
	}
	if m := deleteStmt.FindStringSubmatch(query); m != nil {
		if len(args) != 1 {
			return nil, fmt.Errorf("stub: delete expects one argument, got %d", len(args))
		}
		return c.remove(strings.ToLower(m[1]), strings.ToLower(m[2]), args[0].Value)
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) insert(table string, cols []string, conflict, action string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.failing(table); err != nil {
		return nil, err
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %s has %d columns but %d arguments", table, len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if conflict != "" {
		for i, existing := range c.Tables[table] {
			if existing[conflict] != row[conflict] {
				continue
			}
			if action == "NOTHING" {
				return driver.RowsAffected(0), nil
			}
			c.Tables[table][i] = row
			return driver.RowsAffected(1), nil
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) remove(table, col string, value any) (driver.Result, error) {
	if err := c.failing(table); err != nil {
		return nil, err
	}
	kept := c.Tables[table][:0]
	var n int64
	for _, row := range c.Tables[table] {
		if row[col] == value {
			n++
			continue
		}
		kept = append(kept, row)
	}
	c.Tables[table] = kept
	return driver.RowsAffected(n), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	m := selectStmt.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("stub: unsupported query %q", query)
	}
	table := strings.ToLower(m[2])
	if err := c.failing(table); err != nil {
		return nil, err
	}
	cols := columns(m[1])
	out := &stubRows{cols: cols}
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. Transactions are no-ops.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	return stubTx{}, nil
}

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Prepare implements driver.Conn; the stub only runs direct statements.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("stub: prepare unsupported for %q", query)
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	next int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}

func columns(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}
