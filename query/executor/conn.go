// Package executor assembles entity selects, runs them and hydrates nested results.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/sqlgen"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Conn runs statements of one request over a single transaction. At most one
// statement is in flight; the lock is held until its rows are fully read.
type Conn struct {
	q          Querier
	mu         sync.Mutex
	statements atomic.Int64
}

// NewConn wraps q
func NewConn(q Querier) *Conn {
	return &Conn{q: q}
}

// Select runs a read statement and returns all rows keyed by column name
func (c *Conn) Select(ctx context.Context, q sqlgen.Query) ([]sqlgen.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements.Add(1)

	started := time.Now()
	rows, err := c.q.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		debug.SQL(q.SQL, q.Args, started, err)
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	debug.SQL(q.SQL, q.Args, started, err)
	return result, err
}

// Exec runs a write statement and returns the number of affected rows
func (c *Conn) Exec(ctx context.Context, q sqlgen.Query) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements.Add(1)

	started := time.Now()
	res, err := c.q.ExecContext(ctx, q.SQL, q.Args...)
	debug.SQL(q.SQL, q.Args, started, err)
	if err != nil {
		return 0, fmt.Errorf("statement execution failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// Statements returns the number of statements issued so far
func (c *Conn) Statements() int64 {
	return c.statements.Load()
}

func scanRows(rows *sql.Rows) ([]sqlgen.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var result []sqlgen.Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(sqlgen.Row, len(columns))
		for i, col := range columns {
			// text, uuid and numeric values arrive as bytes from lib/pq
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return result, nil
}
