package builder

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

// WhereOptions controls how to-many relation filters are compiled
type WhereOptions struct {
	// AllowManyJoin joins to-many relations directly instead of using a subquery.
	// Only contexts that tolerate duplicated parent rows may set it.
	AllowManyJoin bool
}

// WhereBuilder lowers filter trees into SQL predicates
type WhereBuilder struct {
	schema     *schema.Schema
	joins      *JoinBuilder
	paths      *PathFactory
	conditions sqlgen.ConditionBuilder
}

// NewWhereBuilder creates a new WHERE builder
func NewWhereBuilder(s *schema.Schema, joins *JoinBuilder, paths *PathFactory) *WhereBuilder {
	return &WhereBuilder{schema: s, joins: joins, paths: paths}
}

// Build compiles where at (entity, path). It returns a nil predicate for the
// identity filter and the joins the predicate depends on.
func (b *WhereBuilder) Build(entity *schema.Entity, path Path, where ast.Where, opts WhereOptions) (sq.Sqlizer, Joins, error) {
	return b.build(entity, path, where, opts, Joins{})
}

// Apply compiles where and adds predicate and joins to sb
func (b *WhereBuilder) Apply(sb sq.SelectBuilder, entity *schema.Entity, path Path, where ast.Where, opts WhereOptions) (sq.SelectBuilder, error) {
	expr, joins, err := b.Build(entity, path, where, opts)
	if err != nil {
		return sb, err
	}
	sb = joins.Apply(sb)
	if expr != nil {
		sb = sb.Where(expr)
	}
	return sb, nil
}

func (b *WhereBuilder) build(entity *schema.Entity, path Path, where ast.Where, opts WhereOptions, joins Joins) (sq.Sqlizer, Joins, error) {
	var parts sq.And

	for _, name := range where.FieldNames() {
		expr, next, err := b.field(entity, path, name, where.Fields[name], opts, joins)
		if err != nil {
			return nil, joins, err
		}
		joins = next
		if expr != nil {
			parts = append(parts, expr)
		}
	}

	for _, sub := range where.And {
		expr, next, err := b.build(entity, path, sub, opts, joins)
		if err != nil {
			return nil, joins, err
		}
		joins = next
		if expr != nil {
			parts = append(parts, expr)
		}
	}

	if len(where.Or) > 0 {
		or := sq.Or{}
		always := false
		for _, sub := range where.Or {
			expr, next, err := b.build(entity, path, sub, opts, joins)
			if err != nil {
				return nil, joins, err
			}
			joins = next
			if expr == nil {
				always = true
				continue
			}
			or = append(or, expr)
		}
		if !always {
			parts = append(parts, or)
		}
	}

	if where.Not != nil {
		expr, next, err := b.build(entity, path, *where.Not, opts, joins)
		if err != nil {
			return nil, joins, err
		}
		joins = next
		if expr != nil {
			parts = append(parts, sqlgen.Not(expr))
		}
	}

	switch len(parts) {
	case 0:
		return nil, joins, nil
	case 1:
		return parts[0], joins, nil
	}
	return parts, joins, nil
}

func (b *WhereBuilder) field(entity *schema.Entity, path Path, name string, filter ast.FieldFilter, opts WhereOptions, joins Joins) (sq.Sqlizer, Joins, error) {
	f, err := entity.Field(name)
	if err != nil {
		return nil, joins, err
	}

	switch f := f.(type) {
	case *schema.Column:
		cond, ok := filter.(ast.Condition)
		if !ok {
			return nil, joins, &schema.ConsistencyError{Entity: entity.Name, Field: name, Message: "column filter must be a condition"}
		}
		expr, err := b.conditions.Build(sqlgen.Column(path.Alias(), f.ColumnName), cond)
		return expr, joins, err

	case *schema.Relation:
		nested, ok := filter.(ast.Where)
		if !ok {
			return nil, joins, &schema.ConsistencyError{Entity: entity.Name, Field: name, Message: "relation filter must be a where"}
		}
		if nested.IsEmpty() {
			return nil, joins, nil
		}
		target, err := b.schema.Entity(f.Target)
		if err != nil {
			return nil, joins, err
		}

		if !f.Kind.IsToMany() {
			if cond, ok := primaryOnly(target, nested); ok && f.Kind.IsOwning() {
				owner := path.For(name).Back()
				expr, err := b.conditions.Build(sqlgen.Column(owner.Alias(), f.JoiningColumn.ColumnName), cond)
				return expr, joins, err
			}
			return b.joined(entity, path, name, nested, opts, joins)
		}

		if opts.AllowManyJoin {
			return b.joined(entity, path, name, nested, opts, joins)
		}
		expr, err := b.subquery(entity, path, f, target, nested)
		return expr, joins, err
	}

	return nil, joins, &schema.ConsistencyError{Entity: entity.Name, Field: name, Message: "unknown field type"}
}

func (b *WhereBuilder) joined(entity *schema.Entity, path Path, name string, nested ast.Where, opts WhereOptions, joins Joins) (sq.Sqlizer, Joins, error) {
	relJoins, child, target, err := b.joins.Join(entity, path, name)
	if err != nil {
		return nil, joins, err
	}
	return b.build(target, child, nested, opts, joins.Merge(relJoins))
}

// subquery compiles a to-many relation filter as parent.primary IN (SELECT …)
func (b *WhereBuilder) subquery(entity *schema.Entity, path Path, rel *schema.Relation, target *schema.Entity, nested ast.Where) (sq.Sqlizer, error) {
	sub := b.paths.Subquery(path, rel.Name)
	parentKey := sqlgen.Column(path.Alias(), entity.PrimaryColumn)

	switch rel.Kind {
	case schema.OneHasMany:
		fk, err := b.schema.TargetJoiningColumn(entity, rel)
		if err != nil {
			return nil, err
		}
		sb := sqlgen.Statement.
			Select(sqlgen.Column(sub.Alias(), fk)).
			From(sqlgen.Table(target.TableName, sub.Alias()))
		sb, err = b.Apply(sb, target, sub, nested, WhereOptions{})
		if err != nil {
			return nil, err
		}
		return sqlgen.In(parentKey, sb), nil

	case schema.ManyHasManyOwning, schema.ManyHasManyInverse:
		jt, selfCol, targetCol, err := JunctionColumns(b.schema, entity, rel)
		if err != nil {
			return nil, err
		}
		junction := JunctionAlias(sub)
		sb := sqlgen.Statement.
			Select(sqlgen.Column(junction, selfCol)).
			From(sqlgen.Table(jt.TableName, junction))

		if cond, ok := primaryOnly(target, nested); ok {
			expr, err := b.conditions.Build(sqlgen.Column(junction, targetCol), cond)
			if err != nil {
				return nil, err
			}
			if expr != nil {
				sb = sb.Where(expr)
			}
			return sqlgen.In(parentKey, sb), nil
		}

		sb = sb.JoinClause(Join{
			Type:      InnerJoin,
			Table:     target.TableName,
			Alias:     sub.Alias(),
			Condition: sqlgen.Column(sub.Alias(), target.PrimaryColumn) + " = " + sqlgen.Column(junction, targetCol),
		}.SQL())
		sb, err = b.Apply(sb, target, sub, nested, WhereOptions{})
		if err != nil {
			return nil, err
		}
		return sqlgen.In(parentKey, sb), nil
	}

	return nil, &schema.ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "relation is not to-many"}
}

// primaryOnly returns the primary key condition when it is the only key of where
func primaryOnly(target *schema.Entity, where ast.Where) (ast.Condition, bool) {
	if len(where.Fields) != 1 || len(where.And) > 0 || len(where.Or) > 0 || where.Not != nil {
		return ast.Condition{}, false
	}
	cond, ok := where.Fields[target.PrimaryField].(ast.Condition)
	return cond, ok
}
