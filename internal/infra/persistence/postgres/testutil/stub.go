// Package testutil provides an in-memory database/sql driver that understands
// exactly the statements the postgres store issues: schema creation, table
// truncation, plain and upserting inserts, and single-table selects with an
// optional equality predicate on the first bind argument.
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
	createRe   = regexp.MustCompile(`(?i)^CREATE TABLE IF NOT EXISTS (\w+) \(`)
	truncateRe = regexp.MustCompile(`(?i)^TRUNCATE TABLE (\w+)$`)
	insertRe   = regexp.MustCompile(`(?i)^INSERT INTO (\w+) \(([^)]*)\) VALUES \([^)]*\)(?: ON CONFLICT ?\((\w+)\) DO UPDATE SET .+)?$`)
	selectRe   = regexp.MustCompile(`(?i)^SELECT (.+?) FROM (\w+)(?: WHERE (\w+) = \$1)?(?: ORDER BY \w+)?$`)
)

// Row is one stored row keyed by column name.
type Row = map[string]any

// StubConn is a single shared connection holding every table in memory.
type StubConn struct {
	// Execs lists each executed statement with whitespace collapsed.
	Execs  []string
	Tables map[string][]Row

	FailExec   bool
	FailBegin  bool
	FailCommit bool
	// FailTables makes any statement touching a listed table fail.
	FailTables map[string]bool
}

var driverSeq atomic.Int64

// NewStubDB registers a fresh driver and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]Row)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; every statement goes through the
// context-aware fast paths instead.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements unsupported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stub: begin failed")
	}
	return stubTx{conn: c}, nil
}

// Ping implements driver.Pinger and fails together with FailExec.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stub: ping failed")
	}
	return nil
}

func (c *StubConn) touch(table string) error {
	if c.FailTables[table] {
		return fmt.Errorf("stub: table %s failed", table)
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	stmt := normalize(query)
	c.Execs = append(c.Execs, stmt)
	if c.FailExec {
		return nil, errors.New("stub: exec failed")
	}
	if createRe.MatchString(stmt) {
		return driver.RowsAffected(0), nil
	}
	if m := truncateRe.FindStringSubmatch(stmt); m != nil {
		if err := c.touch(m[1]); err != nil {
			return nil, err
		}
		n := len(c.Tables[m[1]])
		delete(c.Tables, m[1])
		return driver.RowsAffected(n), nil
	}
	if m := insertRe.FindStringSubmatch(stmt); m != nil {
		if err := c.touch(m[1]); err != nil {
			return nil, err
		}
		return c.insert(m[1], splitList(m[2]), m[3], args)
	}
	return nil, fmt.Errorf("stub: unsupported statement %q", stmt)
}

func (c *StubConn) insert(table string, cols []string, conflict string, args []driver.NamedValue) (driver.Result, error) {
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns but %d arguments", len(cols), len(args))
	}
	row := make(Row, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	if conflict != "" {
		key, ok := row[conflict]
		if !ok {
			return nil, fmt.Errorf("stub: conflict column %s not inserted", conflict)
		}
		for i, existing := range c.Tables[table] {
			if existing[conflict] == key {
				c.Tables[table][i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.Tables[table] = append(c.Tables[table], row)
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext. Rows come back in
// insertion order.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	stmt := normalize(query)
	m := selectRe.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("stub: unsupported query %q", stmt)
	}
	cols, table, where := splitList(m[1]), m[2], m[3]
	if err := c.touch(table); err != nil {
		return nil, err
	}
	if where != "" && len(args) != 1 {
		return nil, fmt.Errorf("stub: predicate on %s needs one argument, got %d", where, len(args))
	}
	out := &stubRows{cols: cols}
	for _, row := range c.Tables[table] {
		if where != "" && row[where] != args[0].Value {
			continue
		}
		values := make([]driver.Value, len(cols))
		for i, col := range cols {
			values[i] = row[col]
		}
		out.rows = append(out.rows, values)
	}
	return out, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("stub: commit failed")
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
