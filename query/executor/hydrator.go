package executor

import (
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/builder"
	"github.com/satishbabariya/contentql/query/sqlgen"
)

// Object is a hydrated entity keyed by requested aliases
type Object map[string]any

// Hydrator turns flat rows into objects shaped like the request
type Hydrator struct{}

// Objects builds one object per row with scalar fields and _meta filled in.
// Relation fields are attached later by the select builder.
func (Hydrator) Objects(p *plan, rows []sqlgen.Row) []Object {
	out := make([]Object, len(rows))
	for i, row := range rows {
		obj := make(Object, len(p.node.Fields))
		for _, f := range p.node.Fields {
			switch n := f.(type) {
			case *ast.FieldNode:
				obj[n.NodeAlias()] = row[n.Name]
			case *ast.QueryNode:
				if n.Name == ast.MetaField && p.meta != nil {
					obj[n.NodeAlias()] = p.meta.Object(row)
				}
			}
		}
		out[i] = obj
	}
	return out
}

// Group buckets objects by the grouping key of their row, keeping row order
func (Hydrator) Group(rows []sqlgen.Row, objects []Object) map[string][]Object {
	groups := make(map[string][]Object)
	for i, row := range rows {
		key := sqlgen.Key(row[builder.GroupingKey])
		groups[key] = append(groups[key], objects[i])
	}
	return groups
}
