package executor

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/builder"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

const metaPrefix = "__meta_"

// column is a labelled select expression
type column struct {
	alias string
	expr  sq.Sqlizer
}

// MetaHandler resolves _meta readable/updatable flags
type MetaHandler struct {
	factory *acl.PredicateFactory
	where   *builder.WhereBuilder
}

// NewMetaHandler creates a meta handler
func NewMetaHandler(factory *acl.PredicateFactory, where *builder.WhereBuilder) *MetaHandler {
	return &MetaHandler{factory: factory, where: where}
}

type metaFlag struct {
	alias  string
	column string
	value  bool
}

type metaField struct {
	alias string
	flags []metaFlag
}

// metaPlan maps flag columns of a row to a _meta object
type metaPlan struct {
	fields []metaField
}

// Object builds the _meta value of a row
func (p *metaPlan) Object(row sqlgen.Row) Object {
	out := make(Object, len(p.fields))
	for _, f := range p.fields {
		flags := make(Object, len(f.flags))
		for _, fl := range f.flags {
			v := fl.value
			if fl.column != "" {
				v = sqlgen.Truthy(row[fl.column])
			}
			flags[fl.alias] = v
		}
		out[f.alias] = flags
	}
	return out
}

// Plan resolves the flags requested by node. Flags decided by the grant alone
// become constants; predicate-gated flags become boolean columns. implied
// reports predicates every selected row already satisfies.
func (h *MetaHandler) Plan(entity *schema.Entity, path builder.Path, node *ast.QueryNode, implied func(string) bool) (*metaPlan, []column, builder.Joins, error) {
	p := &metaPlan{}
	var columns []column
	var joins builder.Joins
	seen := make(map[string]bool)

	for _, f := range node.Fields {
		if _, err := entity.Field(f.NodeName()); err != nil {
			return nil, nil, joins, err
		}
		field := metaField{alias: f.NodeAlias()}

		requested := []ast.Node{&ast.FieldNode{Name: ast.MetaReadable}, &ast.FieldNode{Name: ast.MetaUpdatable}}
		if q, ok := f.(*ast.QueryNode); ok {
			requested = q.Fields
		}

		for _, r := range requested {
			var op schema.Operation
			switch r.NodeName() {
			case ast.MetaReadable:
				op = schema.OperationRead
			case ast.MetaUpdatable:
				op = schema.OperationUpdate
			default:
				return nil, nil, joins, &schema.ConsistencyError{Entity: entity.Name, Field: f.NodeName(), Message: "unknown meta flag " + r.NodeName()}
			}

			flag := metaFlag{alias: r.NodeAlias()}
			pred, grant, err := h.factory.FieldPredicate(entity, op, f.NodeName())
			if err != nil {
				return nil, nil, joins, err
			}
			switch {
			case !grant.Granted():
				flag.value = false
			case grant.Unconditional():
				flag.value = true
			case op == schema.OperationRead && implied(grant.Name):
				flag.value = true
			default:
				expr, predJoins, err := h.where.Build(entity, path, pred, builder.WhereOptions{})
				if err != nil {
					return nil, nil, joins, err
				}
				if expr == nil {
					flag.value = true
					break
				}
				joins = joins.Merge(predJoins)
				flag.column = metaPrefix + r.NodeName() + "_" + f.NodeName()
				if !seen[flag.column] {
					seen[flag.column] = true
					columns = append(columns, column{alias: flag.column, expr: sqlgen.Coalesce(expr)})
				}
			}
			field.flags = append(field.flags, flag)
		}
		p.fields = append(p.fields, field)
	}
	return p, columns, joins, nil
}
