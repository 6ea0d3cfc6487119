package request

import (
	"fmt"
	"sort"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

const keyVariable = "variable"

// Where decodes a filter over entity. Column keys take a condition, relation
// keys a nested filter over the target entity.
func (d *Decoder) Where(entity *schema.Entity, raw any) (ast.Where, error) {
	m, err := asMap(raw)
	if err != nil {
		return ast.Where{}, err
	}
	w := ast.Where{}
	for _, key := range sortedKeys(m) {
		v := m[key]
		switch key {
		case ast.KeyAnd, ast.KeyOr:
			items, err := asList(v)
			if err != nil {
				return ast.Where{}, fmt.Errorf("%s: %w", key, err)
			}
			parts := make([]ast.Where, 0, len(items))
			for i, item := range items {
				part, err := d.Where(entity, item)
				if err != nil {
					return ast.Where{}, fmt.Errorf("%s[%d]: %w", key, i, err)
				}
				parts = append(parts, part)
			}
			if key == ast.KeyAnd {
				w.And = parts
			} else {
				w.Or = parts
			}
		case ast.KeyNot:
			not, err := d.Where(entity, v)
			if err != nil {
				return ast.Where{}, fmt.Errorf("not: %w", err)
			}
			w.Not = &not
		default:
			f, err := entity.Field(key)
			if err != nil {
				return ast.Where{}, err
			}
			if w.Fields == nil {
				w.Fields = make(map[string]ast.FieldFilter)
			}
			switch f := f.(type) {
			case *schema.Column:
				cond, err := Condition(v)
				if err != nil {
					return ast.Where{}, fmt.Errorf("%s: %w", key, err)
				}
				w.Fields[key] = cond
			case *schema.Relation:
				target, err := d.schema.Entity(f.Target)
				if err != nil {
					return ast.Where{}, err
				}
				nested, err := d.Where(target, v)
				if err != nil {
					return ast.Where{}, fmt.Errorf("%s: %w", key, err)
				}
				w.Fields[key] = nested
			}
		}
	}
	return w, nil
}

// Condition decodes a column condition such as {gte: 3, not: {eq: 5}}
func Condition(raw any) (ast.Condition, error) {
	m, err := asMap(raw)
	if err != nil {
		return ast.Condition{}, err
	}
	c := ast.Condition{}
	for _, key := range sortedKeys(m) {
		v := m[key]
		switch key {
		case ast.KeyAnd, ast.KeyOr:
			items, err := asList(v)
			if err != nil {
				return ast.Condition{}, fmt.Errorf("%s: %w", key, err)
			}
			parts := make([]ast.Condition, 0, len(items))
			for i, item := range items {
				part, err := Condition(item)
				if err != nil {
					return ast.Condition{}, fmt.Errorf("%s[%d]: %w", key, i, err)
				}
				parts = append(parts, part)
			}
			if key == ast.KeyAnd {
				c.And = parts
			} else {
				c.Or = parts
			}
		case ast.KeyNot:
			not, err := Condition(v)
			if err != nil {
				return ast.Condition{}, fmt.Errorf("not: %w", err)
			}
			c.Not = &not
		default:
			if !ast.IsOperator(key) {
				return ast.Condition{}, fmt.Errorf("unknown operator %q", key)
			}
			value, err := operandValue(ast.Operator(key), v)
			if err != nil {
				return ast.Condition{}, fmt.Errorf("%s: %w", key, err)
			}
			c.Operands = append(c.Operands, ast.Operand{Op: ast.Operator(key), Value: value})
		}
	}
	return c, nil
}

func operandValue(op ast.Operator, v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		name, ok := m[keyVariable].(string)
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("expected a value or {variable: name}")
		}
		return ast.VariableRef{Name: name}, nil
	}
	switch op {
	case ast.OpIn, ast.OpNotIn:
		list, err := asList(v)
		if err != nil {
			return nil, err
		}
		return list, nil
	case ast.OpNull, ast.OpAlways, ast.OpNever:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", v)
		}
		return b, nil
	}
	return v, nil
}

// UniqueWhere decodes a unique lookup; relation keys hold nested lookups
func UniqueWhere(raw any) (ast.UniqueWhere, error) {
	m, err := asMap(raw)
	if err != nil {
		return nil, err
	}
	out := make(ast.UniqueWhere, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			u, err := UniqueWhere(nested)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = u
			continue
		}
		out[k] = v
	}
	return out, nil
}

// OrderBy decodes [{title: asc}, {author: {name: desc}}]
func OrderBy(raw any) ([]ast.OrderBy, error) {
	items, err := asList(raw)
	if err != nil {
		return nil, err
	}
	var out []ast.OrderBy
	for i, item := range items {
		m, err := asMap(item)
		if err != nil {
			return nil, fmt.Errorf("orderBy[%d]: %w", i, err)
		}
		for _, key := range sortedKeys(m) {
			orders, err := orderPath([]string{key}, m[key])
			if err != nil {
				return nil, fmt.Errorf("orderBy[%d]: %w", i, err)
			}
			out = append(out, orders...)
		}
	}
	return out, nil
}

func orderPath(path []string, v any) ([]ast.OrderBy, error) {
	switch t := v.(type) {
	case string:
		dir := ast.OrderDirection(t)
		switch dir {
		case ast.Asc, ast.Desc, ast.AscNullsFirst, ast.DescNullsLast:
			return []ast.OrderBy{{Path: path, Direction: dir}}, nil
		}
		return nil, fmt.Errorf("unknown direction %q", t)
	case map[string]any:
		var out []ast.OrderBy
		for _, key := range sortedKeys(t) {
			next := append(append([]string(nil), path...), key)
			orders, err := orderPath(next, t[key])
			if err != nil {
				return nil, err
			}
			out = append(out, orders...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a direction or nested field, got %T", v)
}

func asMap(v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("expected an object, got %T", v)
}

func asList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case nil:
		return []any{}, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
