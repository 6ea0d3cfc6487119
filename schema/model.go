// Package schema provides the relational model the query compiler works against.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/contentql/query/ast"
)

// Schema holds all entities and enums of a project
type Schema struct {
	Entities map[string]*Entity
	Enums    map[string][]string
}

// Entity describes a table-backed entity
type Entity struct {
	Name          string
	PrimaryField  string
	PrimaryColumn string
	TableName     string
	Fields        map[string]Field
	FieldOrder    []string
	Unique        []UniqueConstraint
}

// UniqueConstraint is a set of fields identifying a row
type UniqueConstraint struct {
	Fields []string
}

// Field is either a *Column or a *Relation
type Field interface {
	FieldName() string
	isField()
}

// ScalarType is the type of a column
type ScalarType string

const (
	TypeUUID     ScalarType = "uuid"
	TypeString   ScalarType = "string"
	TypeInt      ScalarType = "int"
	TypeDouble   ScalarType = "double"
	TypeBool     ScalarType = "bool"
	TypeDateTime ScalarType = "datetime"
	TypeDate     ScalarType = "date"
	TypeJSON     ScalarType = "json"
	TypeEnum     ScalarType = "enum"
)

// Column is a scalar field
type Column struct {
	Name       string
	ColumnName string
	Type       ScalarType
	EnumName   string
	Nullable   bool
	Default    any
}

func (c *Column) FieldName() string { return c.Name }
func (c *Column) isField()          {}

// RelationKind is the closed set of relation shapes
type RelationKind int

const (
	ManyHasOne RelationKind = iota + 1
	OneHasMany
	OneHasOneOwning
	OneHasOneInverse
	ManyHasManyOwning
	ManyHasManyInverse
)

var relationKindNames = map[RelationKind]string{
	ManyHasOne:         "manyHasOne",
	OneHasMany:         "oneHasMany",
	OneHasOneOwning:    "oneHasOneOwning",
	OneHasOneInverse:   "oneHasOneInverse",
	ManyHasManyOwning:  "manyHasManyOwning",
	ManyHasManyInverse: "manyHasManyInverse",
}

func (k RelationKind) String() string {
	if name, ok := relationKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RelationKind(%d)", int(k))
}

// IsToMany reports whether the relation yields a list
func (k RelationKind) IsToMany() bool {
	return k == OneHasMany || k == ManyHasManyOwning || k == ManyHasManyInverse
}

// IsOwning reports whether the relation stores the link
func (k RelationKind) IsOwning() bool {
	return k == ManyHasOne || k == OneHasOneOwning || k == ManyHasManyOwning
}

// JoiningColumn is the foreign key of an owning to-one relation
type JoiningColumn struct {
	ColumnName string
	OnDelete   string
}

// JoiningTable is the junction table of an owning many-has-many relation
type JoiningTable struct {
	TableName            string
	JoiningColumn        string
	InverseJoiningColumn string
}

// Relation is a link to another entity
type Relation struct {
	Name          string
	Kind          RelationKind
	Target        string
	InversedBy    string
	OwnedBy       string
	Nullable      bool
	JoiningColumn JoiningColumn
	JoiningTable  JoiningTable
	OrderBy       []ast.OrderBy
}

func (r *Relation) FieldName() string { return r.Name }
func (r *Relation) isField()          {}

// Entity returns an entity by name
func (s *Schema) Entity(name string) (*Entity, error) {
	e, ok := s.Entities[name]
	if !ok {
		return nil, &ConsistencyError{Entity: name, Message: "unknown entity"}
	}
	return e, nil
}

// MustEntity returns an entity by name and panics when it is missing
func (s *Schema) MustEntity(name string) *Entity {
	e, err := s.Entity(name)
	if err != nil {
		panic(err)
	}
	return e
}

// EntityNames returns entity names in sorted order
func (s *Schema) EntityNames() []string {
	names := make([]string, 0, len(s.Entities))
	for name := range s.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Field returns a field by name
func (e *Entity) Field(name string) (Field, error) {
	f, ok := e.Fields[name]
	if !ok {
		return nil, &ConsistencyError{Entity: e.Name, Field: name, Message: "unknown field"}
	}
	return f, nil
}

// Column returns a column field by name
func (e *Entity) Column(name string) (*Column, error) {
	f, err := e.Field(name)
	if err != nil {
		return nil, err
	}
	c, ok := f.(*Column)
	if !ok {
		return nil, &ConsistencyError{Entity: e.Name, Field: name, Message: "field is not a column"}
	}
	return c, nil
}

// Relation returns a relation field by name
func (e *Entity) Relation(name string) (*Relation, error) {
	f, err := e.Field(name)
	if err != nil {
		return nil, err
	}
	r, ok := f.(*Relation)
	if !ok {
		return nil, &ConsistencyError{Entity: e.Name, Field: name, Message: "field is not a relation"}
	}
	return r, nil
}

// IsColumn reports whether name is a column of the entity
func (e *Entity) IsColumn(name string) bool {
	_, ok := e.Fields[name].(*Column)
	return ok
}

// Columns returns the column fields in declaration order
func (e *Entity) Columns() []*Column {
	var cols []*Column
	for _, name := range e.FieldOrder {
		if c, ok := e.Fields[name].(*Column); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// PrimaryColumnType returns the scalar type of the primary column
func (e *Entity) PrimaryColumnType() ScalarType {
	if c, ok := e.Fields[e.PrimaryField].(*Column); ok {
		return c.Type
	}
	return ""
}

// OwningSide resolves the relation that stores the link between entity and rel.Target
func (s *Schema) OwningSide(entity *Entity, rel *Relation) (*Entity, *Relation, error) {
	if rel.Kind.IsOwning() {
		return entity, rel, nil
	}
	target, err := s.Entity(rel.Target)
	if err != nil {
		return nil, nil, err
	}
	owning, err := target.Relation(rel.OwnedBy)
	if err != nil {
		return nil, nil, &ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "inverse relation without owning side"}
	}
	return target, owning, nil
}

// OtherSide returns the relation on the target entity pointing back, if declared
func (s *Schema) OtherSide(rel *Relation) (*Entity, *Relation, error) {
	target, err := s.Entity(rel.Target)
	if err != nil {
		return nil, nil, err
	}
	name := rel.InversedBy
	if !rel.Kind.IsOwning() {
		name = rel.OwnedBy
	}
	if name == "" {
		return target, nil, nil
	}
	other, err := target.Relation(name)
	if err != nil {
		return nil, nil, err
	}
	return target, other, nil
}

// TargetJoiningColumn returns the foreign key column on the target of an inverse to-one or one-has-many relation
func (s *Schema) TargetJoiningColumn(entity *Entity, rel *Relation) (string, error) {
	_, owning, err := s.OwningSide(entity, rel)
	if err != nil {
		return "", err
	}
	if owning.Kind != ManyHasOne && owning.Kind != OneHasOneOwning {
		return "", &ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "relation has no joining column"}
	}
	return owning.JoiningColumn.ColumnName, nil
}

// snakeCase converts a camelCase name to snake_case
func snakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
