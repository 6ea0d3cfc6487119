package request

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

type aclDocument struct {
	ACL struct {
		Roles map[string]struct {
			Entities map[string]entityACLDocument `yaml:"entities"`
		} `yaml:"roles"`
	} `yaml:"acl"`
}

type entityACLDocument struct {
	Predicates map[string]any `yaml:"predicates"`
	Operations struct {
		Read   map[string]any `yaml:"read"`
		Create map[string]any `yaml:"create"`
		Update map[string]any `yaml:"update"`
		Delete any            `yaml:"delete"`
	} `yaml:"operations"`
}

// DecodeRoles parses the acl.roles section of a project document. Field
// grants are `true` or the name of a predicate; predicates are filters over
// the entity that may reference variables with {variable: name}.
func DecodeRoles(s *schema.Schema, data []byte) (schema.Roles, error) {
	var doc aclDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse acl: %w", err)
	}
	d := NewDecoder(s)
	roles := make(schema.Roles, len(doc.ACL.Roles))
	for role, rd := range doc.ACL.Roles {
		perms := make(schema.Permissions, len(rd.Entities))
		for name, ed := range rd.Entities {
			ep, err := d.entityPermissions(name, ed)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			perms[name] = ep
		}
		roles[role] = perms
	}
	return roles, nil
}

func (d *Decoder) entityPermissions(name string, ed entityACLDocument) (schema.EntityPermissions, error) {
	entity, err := d.schema.Entity(name)
	if err != nil {
		return schema.EntityPermissions{}, err
	}
	ep := schema.EntityPermissions{}
	if len(ed.Predicates) > 0 {
		ep.Predicates = make(map[string]ast.Where, len(ed.Predicates))
	}
	for pname, raw := range ed.Predicates {
		w, err := d.Where(entity, raw)
		if err != nil {
			return schema.EntityPermissions{}, fmt.Errorf("%s predicate %s: %w", name, pname, err)
		}
		ep.Predicates[pname] = w
	}

	check := func(ref schema.PredicateRef) error {
		if ref.Name == "" {
			return nil
		}
		if _, ok := ep.Predicates[ref.Name]; !ok {
			return &schema.ConsistencyError{Entity: name, Message: fmt.Sprintf("undefined predicate %q", ref.Name)}
		}
		return nil
	}
	fields := func(op schema.Operation, raw map[string]any) (schema.FieldPermissions, error) {
		out := make(schema.FieldPermissions, len(raw))
		for field, v := range raw {
			if _, err := entity.Field(field); err != nil {
				return nil, err
			}
			ref, ok, err := grant(v)
			if err != nil {
				return nil, fmt.Errorf("%s %s.%s: %w", op, name, field, err)
			}
			if !ok {
				continue
			}
			if err := check(ref); err != nil {
				return nil, err
			}
			out[field] = ref
		}
		return out, nil
	}

	if ep.Operations.Read, err = fields(schema.OperationRead, ed.Operations.Read); err != nil {
		return schema.EntityPermissions{}, err
	}
	if ep.Operations.Create, err = fields(schema.OperationCreate, ed.Operations.Create); err != nil {
		return schema.EntityPermissions{}, err
	}
	if ep.Operations.Update, err = fields(schema.OperationUpdate, ed.Operations.Update); err != nil {
		return schema.EntityPermissions{}, err
	}
	if ed.Operations.Delete != nil {
		ref, ok, err := grant(ed.Operations.Delete)
		if err != nil {
			return schema.EntityPermissions{}, fmt.Errorf("delete %s: %w", name, err)
		}
		if ok {
			if err := check(ref); err != nil {
				return schema.EntityPermissions{}, err
			}
			ep.Operations.Delete = ref
		}
	}
	return ep, nil
}

// grant decodes true, false or a predicate name
func grant(v any) (schema.PredicateRef, bool, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return schema.Grant(), true, nil
		}
		return schema.PredicateRef{}, false, nil
	case string:
		return schema.GrantIf(t), true, nil
	}
	return schema.PredicateRef{}, false, fmt.Errorf("expected a boolean or predicate name, got %T", v)
}
