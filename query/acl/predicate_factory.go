package acl

import (
	"sort"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

// PredicateFactory turns grants into filters for the current identity
type PredicateFactory struct {
	permissions schema.Permissions
	injector    *VariableInjector
}

// NewPredicateFactory creates a factory over permissions with bound variables
func NewPredicateFactory(permissions schema.Permissions, injector *VariableInjector) *PredicateFactory {
	if injector == nil {
		injector = NewVariableInjector(nil)
	}
	return &PredicateFactory{permissions: permissions, injector: injector}
}

// Create returns the row filter that grants op on all of fields. For delete the
// field list is ignored. When fields is nil every granted field is used.
func (f *PredicateFactory) Create(entity *schema.Entity, op schema.Operation, fields []string) (ast.Where, error) {
	ep, ok := f.permissions[entity.Name]
	if !ok {
		return ast.Never(entity.PrimaryField), nil
	}

	if op == schema.OperationDelete {
		return f.resolve(entity, ep, ep.Operations.Delete)
	}

	grants := f.permissions.FieldGrants(entity.Name, op)
	if fields == nil {
		for name := range grants {
			fields = append(fields, name)
		}
		sort.Strings(fields)
	}
	if len(fields) == 0 {
		return ast.Never(entity.PrimaryField), nil
	}

	var names []string
	seen := make(map[string]bool)
	for _, field := range fields {
		grant, ok := grants[field]
		if !ok || !grant.Granted() {
			return ast.Never(entity.PrimaryField), nil
		}
		if grant.Unconditional() || seen[grant.Name] {
			continue
		}
		seen[grant.Name] = true
		names = append(names, grant.Name)
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return ast.Where{}, nil
	case 1:
		return f.predicate(entity, ep, names[0])
	}
	or := make([]ast.Where, 0, len(names))
	for _, name := range names {
		w, err := f.predicate(entity, ep, name)
		if err != nil {
			return ast.Where{}, err
		}
		or = append(or, w)
	}
	return ast.Where{Or: or}, nil
}

// FieldPredicate returns the filter gating op on a single field together with its grant
func (f *PredicateFactory) FieldPredicate(entity *schema.Entity, op schema.Operation, field string) (ast.Where, schema.PredicateRef, error) {
	grant := f.Grant(entity, op, field)
	ep := f.permissions[entity.Name]
	w, err := f.resolve(entity, ep, grant)
	return w, grant, err
}

// Grant returns the raw grant of op on field
func (f *PredicateFactory) Grant(entity *schema.Entity, op schema.Operation, field string) schema.PredicateRef {
	if op == schema.OperationDelete {
		return f.permissions[entity.Name].Operations.Delete
	}
	return f.permissions.FieldGrants(entity.Name, op)[field]
}

func (f *PredicateFactory) resolve(entity *schema.Entity, ep schema.EntityPermissions, grant schema.PredicateRef) (ast.Where, error) {
	switch {
	case !grant.Granted():
		return ast.Never(entity.PrimaryField), nil
	case grant.Unconditional():
		return ast.Where{}, nil
	}
	return f.predicate(entity, ep, grant.Name)
}

func (f *PredicateFactory) predicate(entity *schema.Entity, ep schema.EntityPermissions, name string) (ast.Where, error) {
	template, ok := ep.Predicates[name]
	if !ok {
		return ast.Where{}, &schema.ConsistencyError{Entity: entity.Name, Message: "unknown predicate " + name}
	}
	return f.injector.Inject(template), nil
}
