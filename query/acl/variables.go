// Package acl compiles permission grants into filters and verifies writes against them.
package acl

import (
	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/ast"
)

// Variables are identity-scoped values bound at request time
type Variables map[string][]any

// VariableInjector substitutes variable references in predicate templates
type VariableInjector struct {
	variables Variables
}

// NewVariableInjector creates an injector for the given bindings
func NewVariableInjector(variables Variables) *VariableInjector {
	if variables == nil {
		variables = Variables{}
	}
	return &VariableInjector{variables: variables}
}

// Inject returns a copy of where with every variable reference replaced by its
// values. An unbound reference turns its operand into never.
func (i *VariableInjector) Inject(where ast.Where) ast.Where {
	out := ast.Where{}
	if where.Fields != nil {
		out.Fields = make(map[string]ast.FieldFilter, len(where.Fields))
		for name, f := range where.Fields {
			switch v := f.(type) {
			case ast.Condition:
				out.Fields[name] = i.condition(v)
			case ast.Where:
				out.Fields[name] = i.Inject(v)
			}
		}
	}
	for _, a := range where.And {
		out.And = append(out.And, i.Inject(a))
	}
	if where.Or != nil {
		out.Or = make([]ast.Where, 0, len(where.Or))
		for _, o := range where.Or {
			out.Or = append(out.Or, i.Inject(o))
		}
	}
	if where.Not != nil {
		not := i.Inject(*where.Not)
		out.Not = &not
	}
	return out
}

func (i *VariableInjector) condition(c ast.Condition) ast.Condition {
	out := ast.Condition{}
	for _, operand := range c.Operands {
		out.Operands = append(out.Operands, i.operand(operand))
	}
	for _, a := range c.And {
		out.And = append(out.And, i.condition(a))
	}
	if c.Or != nil {
		out.Or = make([]ast.Condition, 0, len(c.Or))
		for _, o := range c.Or {
			out.Or = append(out.Or, i.condition(o))
		}
	}
	if c.Not != nil {
		not := i.condition(*c.Not)
		out.Not = &not
	}
	return out
}

func (i *VariableInjector) operand(o ast.Operand) ast.Operand {
	ref, ok := o.Value.(ast.VariableRef)
	if !ok {
		return o
	}
	values, bound := i.variables[ref.Name]
	if !bound {
		debug.Warn("unbound acl variable", "variable", ref.Name)
		return ast.Operand{Op: ast.OpNever, Value: true}
	}
	list := append([]any(nil), values...)

	switch o.Op {
	case ast.OpEq, ast.OpIn:
		return ast.Operand{Op: ast.OpIn, Value: list}
	case ast.OpNotEq, ast.OpNotIn:
		return ast.Operand{Op: ast.OpNotIn, Value: list}
	}
	if len(list) != 1 {
		debug.Warn("acl variable must hold exactly one value for this operator", "variable", ref.Name, "op", o.Op)
		return ast.Operand{Op: ast.OpNever, Value: true}
	}
	return ast.Operand{Op: o.Op, Value: list[0]}
}
