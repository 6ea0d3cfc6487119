package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/contentql/query/ast"
)

// UniqueError reports a unique lookup that does not identify a single row
type UniqueError struct {
	Entity string
	Keys   []string
}

func (e *UniqueError) Error() string {
	return fmt.Sprintf("%s: fields [%s] do not form a unique key", e.Entity, strings.Join(e.Keys, ", "))
}

// UniqueKeys returns the primary key and every unique constraint of the entity
func (e *Entity) UniqueKeys() [][]string {
	keys := [][]string{{e.PrimaryField}}
	for _, u := range e.Unique {
		fields := append([]string(nil), u.Fields...)
		sort.Strings(fields)
		keys = append(keys, fields)
	}
	return keys
}

// ResolveUnique checks that by names exactly the primary key or a unique constraint
func (s *Schema) ResolveUnique(entity *Entity, by ast.UniqueWhere) error {
	keys := by.Keys()
	if len(keys) == 0 {
		return &UniqueError{Entity: entity.Name, Keys: keys}
	}
	for _, k := range keys {
		f, ok := entity.Fields[k]
		if !ok {
			return &UniqueError{Entity: entity.Name, Keys: keys}
		}
		if by[k] == nil {
			return &UniqueError{Entity: entity.Name, Keys: keys}
		}
		rel, isRel := f.(*Relation)
		if !isRel {
			continue
		}
		if rel.Kind.IsToMany() {
			return &UniqueError{Entity: entity.Name, Keys: keys}
		}
		nested, ok := asUniqueWhere(by[k])
		if !ok {
			return &UniqueError{Entity: entity.Name, Keys: keys}
		}
		target, err := s.Entity(rel.Target)
		if err != nil {
			return err
		}
		if err := s.ResolveUnique(target, nested); err != nil {
			return err
		}
	}
	for _, uk := range entity.UniqueKeys() {
		if equalStrings(uk, keys) {
			return nil
		}
	}
	return &UniqueError{Entity: entity.Name, Keys: keys}
}

// ResolveReduction checks that by picks at most one row of the to-many relation rel
// for every parent row: by alone, or by together with the back-reference of a
// one-has-many relation, must form a unique key of the target
func (s *Schema) ResolveReduction(entity *Entity, rel *Relation, by ast.UniqueWhere) error {
	if !rel.Kind.IsToMany() {
		return &ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "only to-many relations can be reduced"}
	}
	target, err := s.Entity(rel.Target)
	if err != nil {
		return err
	}
	keys := by.Keys()
	if len(keys) == 0 {
		return &UniqueError{Entity: target.Name, Keys: keys}
	}
	for _, k := range keys {
		if _, err := target.Field(k); err != nil {
			return err
		}
	}
	candidates := [][]string{keys}
	if rel.Kind == OneHasMany && rel.OwnedBy != "" {
		scoped := append([]string{rel.OwnedBy}, keys...)
		sort.Strings(scoped)
		candidates = append(candidates, scoped)
	}
	for _, uk := range target.UniqueKeys() {
		for _, c := range candidates {
			if equalStrings(uk, c) {
				return nil
			}
		}
	}
	return &UniqueError{Entity: target.Name, Keys: keys}
}

// IsPrimaryLookup reports whether by is a bare primary key value
func (e *Entity) IsPrimaryLookup(by ast.UniqueWhere) (any, bool) {
	if len(by) != 1 {
		return nil, false
	}
	v, ok := by[e.PrimaryField]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func asUniqueWhere(v any) (ast.UniqueWhere, bool) {
	switch t := v.(type) {
	case ast.UniqueWhere:
		return t, true
	case map[string]any:
		return ast.UniqueWhere(t), true
	}
	return nil, false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
