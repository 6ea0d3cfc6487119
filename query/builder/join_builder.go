package builder

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

// JoinType is the SQL join flavour
type JoinType string

const (
	LeftJoin  JoinType = "LEFT"
	InnerJoin JoinType = "INNER"
	CrossJoin JoinType = "CROSS"
)

// Join is a single join registered for an alias
type Join struct {
	Type      JoinType
	Table     string
	Alias     string
	Condition string
}

// SQL renders the join clause
func (j Join) SQL() string {
	if j.Type == CrossJoin {
		return fmt.Sprintf("%s JOIN %s", j.Type, sqlgen.Table(j.Table, j.Alias))
	}
	return fmt.Sprintf("%s JOIN %s ON %s", j.Type, sqlgen.Table(j.Table, j.Alias), j.Condition)
}

// Joins is an ordered list of joins deduplicated by alias. Add and Merge return
// new values, so a Joins can be shared between branches of a filter.
type Joins struct {
	list []Join
}

// Add appends joins whose alias is not registered yet
func (j Joins) Add(items ...Join) Joins {
	out := Joins{list: append([]Join(nil), j.list...)}
	for _, item := range items {
		if !out.Has(item.Alias) {
			out.list = append(out.list, item)
		}
	}
	return out
}

// Merge appends the joins of o
func (j Joins) Merge(o Joins) Joins {
	return j.Add(o.list...)
}

// Has reports whether alias is joined
func (j Joins) Has(alias string) bool {
	for _, item := range j.list {
		if item.Alias == alias {
			return true
		}
	}
	return false
}

// Len returns the number of joins
func (j Joins) Len() int {
	return len(j.list)
}

// List returns the joins in registration order
func (j Joins) List() []Join {
	return append([]Join(nil), j.list...)
}

// Apply adds the joins to a select
func (j Joins) Apply(sb sq.SelectBuilder) sq.SelectBuilder {
	for _, item := range j.list {
		sb = sb.JoinClause(item.SQL())
	}
	return sb
}

// JoinBuilder emits the joins needed to traverse a relation
type JoinBuilder struct {
	schema *schema.Schema
}

// NewJoinBuilder creates a new JOIN builder
func NewJoinBuilder(s *schema.Schema) *JoinBuilder {
	return &JoinBuilder{schema: s}
}

// Join returns the joins reaching path.For(relationName), the new path and the target entity
func (b *JoinBuilder) Join(entity *schema.Entity, path Path, relationName string) (Joins, Path, *schema.Entity, error) {
	rel, err := entity.Relation(relationName)
	if err != nil {
		return Joins{}, Path{}, nil, err
	}
	target, err := b.schema.Entity(rel.Target)
	if err != nil {
		return Joins{}, Path{}, nil, err
	}

	child := path.For(relationName)
	parentAlias, childAlias := path.Alias(), child.Alias()
	var joins Joins

	switch rel.Kind {
	case schema.ManyHasOne, schema.OneHasOneOwning:
		joins = joins.Add(Join{
			Type:      LeftJoin,
			Table:     target.TableName,
			Alias:     childAlias,
			Condition: sqlgen.Column(childAlias, target.PrimaryColumn) + " = " + sqlgen.Column(parentAlias, rel.JoiningColumn.ColumnName),
		})

	case schema.OneHasMany, schema.OneHasOneInverse:
		fk, err := b.schema.TargetJoiningColumn(entity, rel)
		if err != nil {
			return Joins{}, Path{}, nil, err
		}
		joins = joins.Add(Join{
			Type:      LeftJoin,
			Table:     target.TableName,
			Alias:     childAlias,
			Condition: sqlgen.Column(childAlias, fk) + " = " + sqlgen.Column(parentAlias, entity.PrimaryColumn),
		})

	case schema.ManyHasManyOwning, schema.ManyHasManyInverse:
		jt, selfCol, targetCol, err := JunctionColumns(b.schema, entity, rel)
		if err != nil {
			return Joins{}, Path{}, nil, err
		}
		junctionAlias := JunctionAlias(child)
		joins = joins.Add(
			Join{
				Type:      LeftJoin,
				Table:     jt.TableName,
				Alias:     junctionAlias,
				Condition: sqlgen.Column(junctionAlias, selfCol) + " = " + sqlgen.Column(parentAlias, entity.PrimaryColumn),
			},
			Join{
				Type:      LeftJoin,
				Table:     target.TableName,
				Alias:     childAlias,
				Condition: sqlgen.Column(childAlias, target.PrimaryColumn) + " = " + sqlgen.Column(junctionAlias, targetCol),
			},
		)

	default:
		return Joins{}, Path{}, nil, &schema.ConsistencyError{Entity: entity.Name, Field: relationName, Message: "unsupported relation kind"}
	}

	return joins, child, target, nil
}

// JunctionAlias returns the alias of the junction table joined for path
func JunctionAlias(path Path) string {
	return limitAlias(path.Alias() + aliasSuffix + "junction")
}

// JunctionColumns returns the junction table of a many-has-many relation with the
// column pointing at entity and the column pointing at the target, seen from entity
func JunctionColumns(s *schema.Schema, entity *schema.Entity, rel *schema.Relation) (schema.JoiningTable, string, string, error) {
	_, owning, err := s.OwningSide(entity, rel)
	if err != nil {
		return schema.JoiningTable{}, "", "", err
	}
	jt := owning.JoiningTable
	if jt.TableName == "" {
		return jt, "", "", &schema.ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "relation has no joining table"}
	}
	if rel.Kind == schema.ManyHasManyOwning {
		return jt, jt.JoiningColumn, jt.InverseJoiningColumn, nil
	}
	return jt, jt.InverseJoiningColumn, jt.JoiningColumn, nil
}
