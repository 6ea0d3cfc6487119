// Package sqlgen is the SQL emission surface of the compiler: quoting, placeholders and statement assembly.
package sqlgen

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

// Query represents a SQL statement with arguments
type Query struct {
	SQL  string
	Args []interface{}
}

// String returns the SQL text
func (q Query) String() string {
	return q.SQL
}

// Row is a scanned result row keyed by column alias
type Row map[string]interface{}

// Selector runs a read statement and returns all rows
type Selector interface {
	Select(ctx context.Context, q Query) ([]Row, error)
}

// Execer runs a write statement and returns the affected row count
type Execer interface {
	Exec(ctx context.Context, q Query) (int64, error)
}

// Statements are assembled with "?" placeholders and converted once in Build.
var Statement = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Build renders a statement into a Query with $n placeholders
func Build(s sq.Sqlizer) (Query, error) {
	sqlStr, args, err := s.ToSql()
	if err != nil {
		return Query{}, fmt.Errorf("failed to build statement: %w", err)
	}
	sqlStr, err = sq.Dollar.ReplacePlaceholders(sqlStr)
	if err != nil {
		return Query{}, fmt.Errorf("failed to replace placeholders: %w", err)
	}
	return Query{SQL: sqlStr, Args: args}, nil
}

// QuoteIdent quotes an identifier
func QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// Column returns a qualified, quoted column reference
func Column(alias, column string) string {
	return QuoteIdent(alias) + "." + QuoteIdent(column)
}

// Table returns a quoted table reference with alias
func Table(name, alias string) string {
	if alias == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(name) + " AS " + QuoteIdent(alias)
}

// As labels an expression with a quoted alias
func As(expr sq.Sqlizer, alias string) sq.Sqlizer {
	return sq.Alias(expr, QuoteIdent(alias))
}

// Raw wraps a SQL fragment without arguments
func Raw(sqlStr string) sq.Sqlizer {
	return sq.Expr(sqlStr)
}

var (
	// True is the boolean literal true
	True = sq.Expr("true")
	// False is the boolean literal false
	False = sq.Expr("false")
)

// CaseWhen returns CASE WHEN cond THEN then ELSE NULL END
func CaseWhen(cond sq.Sqlizer, then string) sq.Sqlizer {
	return sq.Expr("CASE WHEN ? THEN "+then+" ELSE NULL END", cond)
}

// Coalesce returns COALESCE(expr, false), turning NULL predicate results into false
func Coalesce(expr sq.Sqlizer) sq.Sqlizer {
	return sq.Expr("COALESCE(?, false)", expr)
}

// Not negates a predicate
func Not(expr sq.Sqlizer) sq.Sqlizer {
	return sq.Expr("NOT (?)", expr)
}

// In returns expr IN (subquery)
func In(expr string, sub sq.Sqlizer) sq.Sqlizer {
	return sq.Expr(expr+" IN (?)", sub)
}

// Key normalises a key value for use as a map key
func Key(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Truthy reads a boolean result column as returned by either driver
func Truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "t") || strings.EqualFold(b, "true")
	case []byte:
		return Truthy(string(b))
	case int64:
		return b != 0
	}
	return false
}
