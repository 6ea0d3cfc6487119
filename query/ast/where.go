package ast

import "sort"

// Operator represents a leaf condition operator
type Operator string

const (
	OpEq     Operator = "eq"
	OpNotEq  Operator = "notEq"
	OpIn     Operator = "in"
	OpNotIn  Operator = "notIn"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpNull   Operator = "null"
	OpAlways Operator = "always"
	OpNever  Operator = "never"
)

// Combinator keys shared by conditions and filters
const (
	KeyAnd = "and"
	KeyOr  = "or"
	KeyNot = "not"
)

// Operators lists every leaf operator in canonical order
var Operators = []Operator{OpEq, OpNotEq, OpIn, OpNotIn, OpLt, OpLte, OpGt, OpGte, OpNull, OpAlways, OpNever}

// IsOperator reports whether key names a leaf operator
func IsOperator(key string) bool {
	for _, op := range Operators {
		if string(op) == key {
			return true
		}
	}
	return false
}

// VariableRef is a placeholder for a runtime variable in predicate templates
type VariableRef struct {
	Name string
}

// Operand is a single operator application
type Operand struct {
	Op    Operator
	Value any
}

// FieldFilter is either a Condition (column) or a nested Where (relation)
type FieldFilter interface {
	isFieldFilter()
}

// Condition is a filter over a single column
type Condition struct {
	Operands []Operand
	And      []Condition
	Or       []Condition
	Not      *Condition
}

func (Condition) isFieldFilter() {}

// IsEmpty reports whether the condition matches everything. An explicit
// empty or-list is not empty: it matches nothing.
func (c Condition) IsEmpty() bool {
	return len(c.Operands) == 0 && len(c.And) == 0 && c.Or == nil && c.Not == nil
}

func Eq(v any) Condition    { return op(OpEq, v) }
func NotEq(v any) Condition { return op(OpNotEq, v) }
func Lt(v any) Condition    { return op(OpLt, v) }
func Lte(v any) Condition   { return op(OpLte, v) }
func Gt(v any) Condition    { return op(OpGt, v) }
func Gte(v any) Condition   { return op(OpGte, v) }

// In matches any of values
func In(values ...any) Condition { return op(OpIn, values) }

// NotIn matches none of values
func NotIn(values ...any) Condition { return op(OpNotIn, values) }

// IsNull matches NULL when isNull is true and NOT NULL otherwise
func IsNull(isNull bool) Condition { return op(OpNull, isNull) }

// Always matches every row
func Always() Condition { return op(OpAlways, true) }

// NeverCondition matches no row
func NeverCondition() Condition { return op(OpNever, true) }

// Variable references a runtime variable; it expands to the bound values
func Variable(name string) Condition { return op(OpIn, VariableRef{Name: name}) }

func op(o Operator, v any) Condition {
	return Condition{Operands: []Operand{{Op: o, Value: v}}}
}

// Where is a recursive filter over an entity
type Where struct {
	Fields map[string]FieldFilter
	And    []Where
	Or     []Where
	Not    *Where
}

func (Where) isFieldFilter() {}

// IsEmpty reports whether the filter is the identity filter
func (w Where) IsEmpty() bool {
	if len(w.Fields) > 0 {
		for _, f := range w.Fields {
			switch v := f.(type) {
			case Condition:
				if !v.IsEmpty() {
					return false
				}
			case Where:
				if !v.IsEmpty() {
					return false
				}
			}
		}
	}
	for _, a := range w.And {
		if !a.IsEmpty() {
			return false
		}
	}
	for _, o := range w.Or {
		if !o.IsEmpty() {
			return false
		}
	}
	return w.Not == nil || w.Not.IsEmpty()
}

// FieldNames returns the field keys of this node in sorted order
func (w Where) FieldNames() []string {
	names := make([]string, 0, len(w.Fields))
	for name := range w.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReferencedFields returns field keys used at this level, including inside combinators
func (w Where) ReferencedFields() []string {
	set := make(map[string]bool)
	var walk func(Where)
	walk = func(n Where) {
		for name := range n.Fields {
			set[name] = true
		}
		for _, a := range n.And {
			walk(a)
		}
		for _, o := range n.Or {
			walk(o)
		}
		if n.Not != nil {
			walk(*n.Not)
		}
	}
	walk(w)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewWhere builds a filter from field clauses
func NewWhere(fields map[string]FieldFilter) Where {
	return Where{Fields: fields}
}

// AndWhere combines filters, dropping identity ones
func AndWhere(parts ...Where) Where {
	var nonEmpty []Where
	for _, p := range parts {
		if !p.IsEmpty() {
			nonEmpty = append(nonEmpty, p)
		}
	}
	switch len(nonEmpty) {
	case 0:
		return Where{}
	case 1:
		return nonEmpty[0]
	}
	return Where{And: nonEmpty}
}

// Never is a filter matching nothing, expressed over the primary field
func Never(primary string) Where {
	return Where{Fields: map[string]FieldFilter{primary: NeverCondition()}}
}

// IsNever reports whether w is exactly the deny-all filter
func (w Where) IsNever() bool {
	if len(w.Fields) != 1 || len(w.And) > 0 || len(w.Or) > 0 || w.Not != nil {
		return false
	}
	for _, f := range w.Fields {
		c, ok := f.(Condition)
		if !ok || len(c.Operands) != 1 || len(c.And) > 0 || len(c.Or) > 0 || c.Not != nil {
			return false
		}
		return c.Operands[0].Op == OpNever && c.Operands[0].Value == true
	}
	return false
}

// UniqueWhere identifies a single row; relation keys hold nested UniqueWhere values
type UniqueWhere map[string]any

// Keys returns the unique where keys in sorted order
func (u UniqueWhere) Keys() []string {
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToWhere converts the lookup into an equality filter
func (u UniqueWhere) ToWhere() Where {
	fields := make(map[string]FieldFilter, len(u))
	for k, v := range u {
		if nested, ok := v.(UniqueWhere); ok {
			fields[k] = nested.ToWhere()
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			fields[k] = UniqueWhere(nested).ToWhere()
			continue
		}
		fields[k] = Eq(v)
	}
	return Where{Fields: fields}
}

// OrderDirection represents sort direction
type OrderDirection string

const (
	Asc           OrderDirection = "asc"
	Desc          OrderDirection = "desc"
	AscNullsFirst OrderDirection = "ascNullsFirst"
	DescNullsLast OrderDirection = "descNullsLast"
)

// OrderBy orders by a field reached through a relation path
type OrderBy struct {
	Path      []string
	Direction OrderDirection
}
