package acl

import (
	"sort"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

// PredicatesInjector restricts read filters by the read predicates of every
// entity they touch, so a filter can never match through rows the caller cannot see
type PredicatesInjector struct {
	schema  *schema.Schema
	factory *PredicateFactory
}

// NewPredicatesInjector creates an injector
func NewPredicatesInjector(s *schema.Schema, factory *PredicateFactory) *PredicatesInjector {
	return &PredicatesInjector{schema: s, factory: factory}
}

// Inject returns where restricted by the read predicate of entity and of every
// relation it filters through. requested lists the fields the caller selects;
// any of them without a read grant denies the whole entity.
func (i *PredicatesInjector) Inject(entity *schema.Entity, where ast.Where, requested []string) (ast.Where, error) {
	grants := i.factory.permissions.FieldGrants(entity.Name, schema.OperationRead)
	for _, field := range requested {
		if !grants[field].Granted() {
			return ast.Never(entity.PrimaryField), nil
		}
	}

	nested, err := i.nested(entity, where)
	if err != nil {
		return ast.Where{}, err
	}
	pred, err := i.factory.Create(entity, schema.OperationRead, rowFields(entity, where))
	if err != nil {
		return ast.Where{}, err
	}
	return ast.AndWhere(nested, pred), nil
}

// RowPredicates returns the distinct predicate names the row filter of Inject
// enforces for entity and where, in sorted order
func (i *PredicatesInjector) RowPredicates(entity *schema.Entity, where ast.Where) []string {
	seen := make(map[string]bool)
	var names []string
	for _, field := range rowFields(entity, where) {
		grant := i.factory.Grant(entity, schema.OperationRead, field)
		if grant.Unconditional() || !grant.Granted() || seen[grant.Name] {
			continue
		}
		seen[grant.Name] = true
		names = append(names, grant.Name)
	}
	sort.Strings(names)
	return names
}

// nested restricts every relation filter of where by its target's read predicate
func (i *PredicatesInjector) nested(entity *schema.Entity, where ast.Where) (ast.Where, error) {
	out := ast.Where{}
	if where.Fields != nil {
		out.Fields = make(map[string]ast.FieldFilter, len(where.Fields))
	}
	for name, filter := range where.Fields {
		sub, ok := filter.(ast.Where)
		if !ok {
			out.Fields[name] = filter
			continue
		}
		rel, err := entity.Relation(name)
		if err != nil {
			return ast.Where{}, err
		}
		target, err := i.schema.Entity(rel.Target)
		if err != nil {
			return ast.Where{}, err
		}
		injected, err := i.nested(target, sub)
		if err != nil {
			return ast.Where{}, err
		}
		pred, err := i.factory.Create(target, schema.OperationRead, rowFields(target, sub))
		if err != nil {
			return ast.Where{}, err
		}
		out.Fields[name] = ast.AndWhere(injected, pred)
	}

	for _, a := range where.And {
		w, err := i.nested(entity, a)
		if err != nil {
			return ast.Where{}, err
		}
		out.And = append(out.And, w)
	}
	if where.Or != nil {
		out.Or = make([]ast.Where, 0, len(where.Or))
		for _, o := range where.Or {
			w, err := i.nested(entity, o)
			if err != nil {
				return ast.Where{}, err
			}
			out.Or = append(out.Or, w)
		}
	}
	if where.Not != nil {
		w, err := i.nested(entity, *where.Not)
		if err != nil {
			return ast.Where{}, err
		}
		out.Not = &w
	}
	return out, nil
}

// rowFields is the primary field plus every field the filter references
func rowFields(entity *schema.Entity, where ast.Where) []string {
	set := map[string]bool{entity.PrimaryField: true}
	for _, f := range where.ReferencedFields() {
		set[f] = true
	}
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
