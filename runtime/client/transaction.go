package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// IsolationLevel is the isolation of the per-request transaction
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	RepeatableRead
	Serializable
)

// ParseIsolation parses read-committed, repeatable-read or serializable
func ParseIsolation(s string) (IsolationLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "", "read-committed":
		return ReadCommitted, nil
	case "repeatable-read":
		return RepeatableRead, nil
	case "serializable":
		return Serializable, nil
	}
	return ReadCommitted, fmt.Errorf("unknown isolation level %q", s)
}

// String returns the configuration name of the level
func (level IsolationLevel) String() string {
	switch level {
	case RepeatableRead:
		return "repeatable-read"
	case Serializable:
		return "serializable"
	default:
		return "read-committed"
	}
}

// ToSQLIsolationLevel maps the level onto database/sql
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

// errRollback aborts a transaction without reporting a failure
var errRollback = errors.New("rollback")

// transaction runs fn in a transaction. An error or panic rolls it back.
func (c *Client) transaction(ctx context.Context, readOnly bool, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: c.isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	committed = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
