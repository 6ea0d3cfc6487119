package schema

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/contentql/query/ast"
)

// identifier is the accepted shape of entity and field names
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SupportedFormat is the accepted project format version range
const SupportedFormat = ">= 1.0, < 2.0"

type modelDocument struct {
	Version  string              `yaml:"version"`
	Enums    map[string][]string `yaml:"enums"`
	Entities yaml.Node           `yaml:"entities"`
}

type entityDocument struct {
	Table   string     `yaml:"table"`
	Primary string     `yaml:"primary"`
	Unique  [][]string `yaml:"unique"`
	Fields  yaml.Node  `yaml:"fields"`
}

type fieldDocument struct {
	Type          string                `yaml:"type"`
	Column        string                `yaml:"column"`
	Enum          string                `yaml:"enum"`
	Nullable      bool                  `yaml:"nullable"`
	Default       any                   `yaml:"default"`
	Relation      string                `yaml:"relation"`
	Target        string                `yaml:"target"`
	InversedBy    string                `yaml:"inversedBy"`
	OwnedBy       string                `yaml:"ownedBy"`
	JoiningColumn string                `yaml:"joiningColumn"`
	OnDelete      string                `yaml:"onDelete"`
	JoiningTable  *joiningTableDocument `yaml:"joiningTable"`
	OrderBy       []orderByDocument     `yaml:"orderBy"`
}

type joiningTableDocument struct {
	Name                 string `yaml:"name"`
	JoiningColumn        string `yaml:"joiningColumn"`
	InverseJoiningColumn string `yaml:"inverseJoiningColumn"`
}

type orderByDocument struct {
	Path      []string `yaml:"path"`
	Direction string   `yaml:"direction"`
}

// CheckFormatVersion validates the project format version against SupportedFormat
func CheckFormatVersion(v string) error {
	if v == "" {
		return nil
	}
	current, err := version.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid format version %q: %w", v, err)
	}
	constraint, err := version.NewConstraint(SupportedFormat)
	if err != nil {
		return err
	}
	if !constraint.Check(current) {
		return fmt.Errorf("unsupported format version %s (supported: %s)", current, SupportedFormat)
	}
	return nil
}

// LoadModel parses a YAML model document
func LoadModel(data []byte) (*Schema, error) {
	var doc modelDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := CheckFormatVersion(doc.Version); err != nil {
		return nil, err
	}

	s := &Schema{Entities: make(map[string]*Entity), Enums: doc.Enums}
	if s.Enums == nil {
		s.Enums = make(map[string][]string)
	}

	if err := eachMapping(&doc.Entities, func(name string, node *yaml.Node) error {
		var ed entityDocument
		if err := node.Decode(&ed); err != nil {
			return fmt.Errorf("entity %s: %w", name, err)
		}
		entity, err := buildEntity(name, ed)
		if err != nil {
			return err
		}
		s.Entities[name] = entity
		return nil
	}); err != nil {
		return nil, err
	}

	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildEntity(name string, ed entityDocument) (*Entity, error) {
	if !identifier.MatchString(name) {
		return nil, &ConsistencyError{Entity: name, Message: "invalid entity name"}
	}
	entity := &Entity{
		Name:         name,
		PrimaryField: ed.Primary,
		TableName:    ed.Table,
		Fields:       make(map[string]Field),
	}
	if entity.PrimaryField == "" {
		entity.PrimaryField = "id"
	}
	if entity.TableName == "" {
		entity.TableName = snakeCase(name)
	}
	for _, u := range ed.Unique {
		entity.Unique = append(entity.Unique, UniqueConstraint{Fields: u})
	}

	err := eachMapping(&ed.Fields, func(fieldName string, node *yaml.Node) error {
		if !identifier.MatchString(fieldName) {
			return &ConsistencyError{Entity: name, Field: fieldName, Message: "invalid field name"}
		}
		var fd fieldDocument
		if err := node.Decode(&fd); err != nil {
			return fmt.Errorf("field %s.%s: %w", name, fieldName, err)
		}
		field, err := buildField(fieldName, fd)
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", name, fieldName, err)
		}
		entity.Fields[fieldName] = field
		entity.FieldOrder = append(entity.FieldOrder, fieldName)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, ok := entity.Fields[entity.PrimaryField]; !ok {
		entity.Fields[entity.PrimaryField] = &Column{Name: entity.PrimaryField, Type: TypeUUID}
		entity.FieldOrder = append([]string{entity.PrimaryField}, entity.FieldOrder...)
	}
	return entity, nil
}

func buildField(name string, fd fieldDocument) (Field, error) {
	if fd.Relation == "" {
		typ := ScalarType(fd.Type)
		if typ == "" {
			typ = TypeString
		}
		return &Column{
			Name:       name,
			ColumnName: fd.Column,
			Type:       typ,
			EnumName:   fd.Enum,
			Nullable:   fd.Nullable,
			Default:    fd.Default,
		}, nil
	}

	rel := &Relation{
		Name:       name,
		Target:     fd.Target,
		InversedBy: fd.InversedBy,
		OwnedBy:    fd.OwnedBy,
		Nullable:   fd.Nullable,
		JoiningColumn: JoiningColumn{
			ColumnName: fd.JoiningColumn,
			OnDelete:   fd.OnDelete,
		},
	}
	if fd.JoiningTable != nil {
		rel.JoiningTable = JoiningTable{
			TableName:            fd.JoiningTable.Name,
			JoiningColumn:        fd.JoiningTable.JoiningColumn,
			InverseJoiningColumn: fd.JoiningTable.InverseJoiningColumn,
		}
	}
	for _, o := range fd.OrderBy {
		dir := ast.OrderDirection(o.Direction)
		if dir == "" {
			dir = ast.Asc
		}
		rel.OrderBy = append(rel.OrderBy, ast.OrderBy{Path: o.Path, Direction: dir})
	}

	switch fd.Relation {
	case "manyHasOne":
		rel.Kind = ManyHasOne
	case "oneHasMany":
		rel.Kind = OneHasMany
	case "oneHasOne":
		rel.Kind = OneHasOneOwning
		if fd.OwnedBy != "" {
			rel.Kind = OneHasOneInverse
		}
	case "manyHasMany":
		rel.Kind = ManyHasManyOwning
		if fd.OwnedBy != "" {
			rel.Kind = ManyHasManyInverse
		}
	default:
		return nil, fmt.Errorf("unknown relation type %q", fd.Relation)
	}
	return rel, nil
}

func (s *Schema) applyDefaults() {
	for _, entity := range s.Entities {
		for _, f := range entity.Fields {
			switch f := f.(type) {
			case *Column:
				if f.ColumnName == "" {
					f.ColumnName = snakeCase(f.Name)
				}
			case *Relation:
				switch f.Kind {
				case ManyHasOne, OneHasOneOwning:
					if f.JoiningColumn.ColumnName == "" {
						f.JoiningColumn.ColumnName = snakeCase(f.Name) + "_id"
					}
				case ManyHasManyOwning:
					jt := &f.JoiningTable
					if jt.TableName == "" {
						jt.TableName = entity.TableName + "_" + snakeCase(f.Name)
					}
					if jt.JoiningColumn == "" {
						jt.JoiningColumn = snakeCase(entity.Name) + "_id"
					}
					if jt.InverseJoiningColumn == "" {
						jt.InverseJoiningColumn = snakeCase(f.Target) + "_id"
					}
				}
			}
		}
		if c, ok := entity.Fields[entity.PrimaryField].(*Column); ok {
			entity.PrimaryColumn = c.ColumnName
		}
	}
}

// Validate checks cross-entity references
func (s *Schema) Validate() error {
	for _, name := range s.EntityNames() {
		entity := s.Entities[name]
		if !entity.IsColumn(entity.PrimaryField) {
			return &ConsistencyError{Entity: name, Field: entity.PrimaryField, Message: "primary field must be a column"}
		}
		for _, u := range entity.Unique {
			for _, f := range u.Fields {
				if _, ok := entity.Fields[f]; !ok {
					return &ConsistencyError{Entity: name, Field: f, Message: "unique constraint references unknown field"}
				}
			}
		}
		for _, fieldName := range entity.FieldOrder {
			switch f := entity.Fields[fieldName].(type) {
			case *Column:
				if f.Type == TypeEnum {
					if _, ok := s.Enums[f.EnumName]; !ok {
						return &ConsistencyError{Entity: name, Field: fieldName, Message: "unknown enum " + f.EnumName}
					}
				}
			case *Relation:
				if err := s.validateRelation(entity, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Schema) validateRelation(entity *Entity, rel *Relation) error {
	target, ok := s.Entities[rel.Target]
	if !ok {
		return &ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "unknown target entity " + rel.Target}
	}
	if rel.Kind.IsOwning() {
		if rel.InversedBy == "" {
			return nil
		}
		other, err := target.Relation(rel.InversedBy)
		if err != nil {
			return err
		}
		if other.OwnedBy != rel.Name || other.Target != entity.Name {
			return &ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "inversedBy does not point back"}
		}
		return nil
	}
	owning, err := target.Relation(rel.OwnedBy)
	if err != nil {
		return err
	}
	expected := map[RelationKind]RelationKind{
		OneHasMany:         ManyHasOne,
		OneHasOneInverse:   OneHasOneOwning,
		ManyHasManyInverse: ManyHasManyOwning,
	}
	if owning.Kind != expected[rel.Kind] || owning.Target != entity.Name {
		return &ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "ownedBy does not reference a matching owning relation"}
	}
	return nil
}

func eachMapping(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
