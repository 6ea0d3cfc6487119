package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

// ErrInvalidOrderBy reports an ordering that cannot be compiled in its context
var ErrInvalidOrderBy = errors.New("invalid order by")

// OrderByBuilder compiles orderings, joining through relations as needed
type OrderByBuilder struct {
	schema *schema.Schema
	joins  *JoinBuilder
}

// NewOrderByBuilder creates a new ORDER BY builder
func NewOrderByBuilder(s *schema.Schema, joins *JoinBuilder) *OrderByBuilder {
	return &OrderByBuilder{schema: s, joins: joins}
}

// Build returns ORDER BY expressions and the joins they need
func (b *OrderByBuilder) Build(entity *schema.Entity, path Path, orderBy []ast.OrderBy, allowManyJoin bool) ([]string, Joins, error) {
	var exprs []string
	var joins Joins
	for _, ob := range orderBy {
		expr, next, err := b.one(entity, path, ob, allowManyJoin, joins)
		if err != nil {
			return nil, joins, err
		}
		joins = next
		exprs = append(exprs, expr)
	}
	return exprs, joins, nil
}

func (b *OrderByBuilder) one(entity *schema.Entity, path Path, ob ast.OrderBy, allowManyJoin bool, joins Joins) (string, Joins, error) {
	if len(ob.Path) == 0 {
		return "", joins, fmt.Errorf("%w: empty path on %s", ErrInvalidOrderBy, entity.Name)
	}
	current := entity
	for _, name := range ob.Path[:len(ob.Path)-1] {
		rel, err := current.Relation(name)
		if err != nil {
			return "", joins, err
		}
		if rel.Kind.IsToMany() && !allowManyJoin {
			return "", joins, fmt.Errorf("%w: %s.%s is a to-many relation", ErrInvalidOrderBy, current.Name, name)
		}
		relJoins, child, target, err := b.joins.Join(current, path, name)
		if err != nil {
			return "", joins, err
		}
		joins = joins.Merge(relJoins)
		path, current = child, target
	}

	last := ob.Path[len(ob.Path)-1]
	col, err := current.Column(last)
	if err != nil {
		return "", joins, err
	}
	dir, err := direction(ob.Direction)
	if err != nil {
		return "", joins, err
	}
	return sqlgen.Column(path.Alias(), col.ColumnName) + " " + dir, joins, nil
}

func direction(d ast.OrderDirection) (string, error) {
	switch d {
	case ast.Asc, "":
		return "ASC", nil
	case ast.Desc:
		return "DESC", nil
	case ast.AscNullsFirst:
		return "ASC NULLS FIRST", nil
	case ast.DescNullsLast:
		return "DESC NULLS LAST", nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidOrderBy, d)
}

// PrimaryOrder returns the default ordering by primary key
func PrimaryOrder(entity *schema.Entity, path Path) string {
	return sqlgen.Column(path.Alias(), entity.PrimaryColumn) + " ASC"
}

// Describe renders orderings for logs
func Describe(orderBy []ast.OrderBy) string {
	parts := make([]string, len(orderBy))
	for i, ob := range orderBy {
		parts[i] = strings.Join(ob.Path, ".") + " " + string(ob.Direction)
	}
	return strings.Join(parts, ", ")
}
