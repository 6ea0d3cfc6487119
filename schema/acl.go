package schema

import "github.com/satishbabariya/contentql/query/ast"

// Operation is an ACL-guarded operation kind
type Operation string

const (
	OperationRead   Operation = "read"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// PredicateRef is either an unconditional grant or a reference to a named predicate
type PredicateRef struct {
	Allowed bool
	Name    string
}

// Unconditional reports whether the grant has no predicate
func (p PredicateRef) Unconditional() bool {
	return p.Allowed && p.Name == ""
}

// Granted reports whether the grant exists at all
func (p PredicateRef) Granted() bool {
	return p.Allowed || p.Name != ""
}

// Grant returns an unconditional grant
func Grant() PredicateRef { return PredicateRef{Allowed: true} }

// GrantIf returns a grant gated by the named predicate
func GrantIf(name string) PredicateRef { return PredicateRef{Name: name} }

// FieldPermissions maps field names to grants; absent fields are forbidden
type FieldPermissions map[string]PredicateRef

// Operations holds per-operation grants of an entity
type Operations struct {
	Read   FieldPermissions
	Create FieldPermissions
	Update FieldPermissions
	Delete PredicateRef
}

// EntityPermissions holds named predicates and grants of an entity
type EntityPermissions struct {
	Predicates map[string]ast.Where
	Operations Operations
}

// Permissions maps entity names to their permissions
type Permissions map[string]EntityPermissions

// Roles maps role names to permission sets
type Roles map[string]Permissions

// FieldGrants returns the field grants of op for an entity, nil for delete or unknown entities
func (p Permissions) FieldGrants(entity string, op Operation) FieldPermissions {
	ep, ok := p[entity]
	if !ok {
		return nil
	}
	switch op {
	case OperationRead:
		return ep.Operations.Read
	case OperationCreate:
		return ep.Operations.Create
	case OperationUpdate:
		return ep.Operations.Update
	}
	return nil
}

// AllowAll builds permissions granting every operation on every field of s
func AllowAll(s *Schema) Permissions {
	perms := make(Permissions, len(s.Entities))
	for name, entity := range s.Entities {
		fields := make(FieldPermissions, len(entity.Fields))
		for field := range entity.Fields {
			fields[field] = Grant()
		}
		perms[name] = EntityPermissions{
			Operations: Operations{Read: fields, Create: fields, Update: fields, Delete: Grant()},
		}
	}
	return perms
}
