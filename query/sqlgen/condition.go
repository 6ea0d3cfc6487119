package sqlgen

import (
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/query/ast"
)

// ConditionBuilder compiles a column condition into a boolean SQL expression
type ConditionBuilder struct{}

// Build returns the predicate for column, or nil when the condition is empty
func (b ConditionBuilder) Build(column string, cond ast.Condition) (sq.Sqlizer, error) {
	if cond.IsEmpty() {
		return nil, nil
	}
	parts, err := b.parts(column, cond)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return sq.And(parts), nil
}

func (b ConditionBuilder) parts(column string, cond ast.Condition) ([]sq.Sqlizer, error) {
	var parts []sq.Sqlizer
	for _, operand := range cond.Operands {
		expr, err := b.operand(column, operand)
		if err != nil {
			return nil, err
		}
		parts = append(parts, expr)
	}

	if cond.And != nil {
		and := sq.And{}
		for _, sub := range cond.And {
			expr, err := b.Build(column, sub)
			if err != nil {
				return nil, err
			}
			if expr != nil {
				and = append(and, expr)
			}
		}
		// and([]) is true; nothing to add
		if len(and) > 0 {
			parts = append(parts, and)
		}
	}

	if cond.Or != nil {
		or := sq.Or{}
		always := false
		for _, sub := range cond.Or {
			expr, err := b.Build(column, sub)
			if err != nil {
				return nil, err
			}
			if expr == nil {
				always = true
				break
			}
			or = append(or, expr)
		}
		if !always {
			// or([]) renders as (1=0)
			parts = append(parts, or)
		}
	}

	if cond.Not != nil {
		expr, err := b.Build(column, *cond.Not)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			parts = append(parts, Not(expr))
		}
	}

	if len(parts) == 0 {
		return []sq.Sqlizer{True}, nil
	}
	return parts, nil
}

func (b ConditionBuilder) operand(column string, o ast.Operand) (sq.Sqlizer, error) {
	if ref, ok := o.Value.(ast.VariableRef); ok {
		return nil, fmt.Errorf("unresolved variable %q on %s", ref.Name, column)
	}
	switch o.Op {
	case ast.OpEq:
		return sq.Eq{column: o.Value}, nil
	case ast.OpNotEq:
		return sq.NotEq{column: o.Value}, nil
	case ast.OpIn:
		values, err := toList(o.Value)
		if err != nil {
			return nil, err
		}
		return sq.Eq{column: values}, nil
	case ast.OpNotIn:
		values, err := toList(o.Value)
		if err != nil {
			return nil, err
		}
		return sq.NotEq{column: values}, nil
	case ast.OpLt:
		return sq.Lt{column: o.Value}, nil
	case ast.OpLte:
		return sq.LtOrEq{column: o.Value}, nil
	case ast.OpGt:
		return sq.Gt{column: o.Value}, nil
	case ast.OpGte:
		return sq.GtOrEq{column: o.Value}, nil
	case ast.OpNull:
		isNull, ok := o.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("operator null on %s expects a boolean, got %T", column, o.Value)
		}
		if isNull {
			return sq.Eq{column: nil}, nil
		}
		return sq.NotEq{column: nil}, nil
	case ast.OpAlways:
		if enabled(o.Value) {
			return True, nil
		}
		return False, nil
	case ast.OpNever:
		if enabled(o.Value) {
			return False, nil
		}
		return True, nil
	}
	return nil, fmt.Errorf("unknown operator %q on %s", o.Op, column)
}

func enabled(v any) bool {
	b, ok := v.(bool)
	return !ok || b
}

// toList normalises in/notIn operands into []interface{}
func toList(v any) ([]interface{}, error) {
	if list, ok := v.([]interface{}); ok {
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	list := make([]interface{}, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, nil
}
