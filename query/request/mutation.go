package request

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

var mutationKinds = []ast.MutationKind{
	ast.MutationCreate,
	ast.MutationUpdate,
	ast.MutationDelete,
	ast.MutationUpsert,
}

func (d *Decoder) rootMutation(name string, body any) (*ast.MutationNode, error) {
	var kind ast.MutationKind
	for _, k := range mutationKinds {
		if strings.HasPrefix(name, string(k)) {
			kind = k
			break
		}
	}
	if kind == "" {
		return nil, fmt.Errorf("unknown operation, expected create, update, delete or upsert followed by an entity")
	}
	entity, err := d.schema.Entity(strings.TrimPrefix(name, string(kind)))
	if err != nil {
		return nil, err
	}
	m, err := asMap(body)
	if err != nil {
		return nil, err
	}

	node := &ast.MutationNode{Kind: kind, Entity: entity.Name}
	node.Alias, _ = m["alias"].(string)
	if v, ok := m["by"]; ok {
		if node.By, err = UniqueWhere(v); err != nil {
			return nil, fmt.Errorf("by: %w", err)
		}
	}
	if v, ok := m["filter"]; ok {
		w, err := d.Where(entity, v)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		node.Filter = &w
	}

	switch kind {
	case ast.MutationCreate:
		node.Data, err = d.Data(entity, m["data"])
	case ast.MutationUpdate:
		if len(node.By) == 0 && node.Filter == nil {
			return nil, fmt.Errorf("update requires by or filter")
		}
		node.Data, err = d.Data(entity, m["data"])
	case ast.MutationUpsert:
		if len(node.By) == 0 {
			return nil, fmt.Errorf("upsert requires by")
		}
		if node.Update, err = d.Data(entity, m["update"]); err == nil {
			node.Create, err = d.Data(entity, m["create"])
		}
	case ast.MutationDelete:
		if len(node.By) == 0 && node.Filter == nil {
			return nil, fmt.Errorf("delete requires by or filter")
		}
	}
	if err != nil {
		return nil, err
	}

	if v, ok := m["fields"]; ok {
		sel, err := d.queryNode(entity, "node", map[string]any{"fields": v})
		if err != nil {
			return nil, fmt.Errorf("selection: %w", err)
		}
		node.Selection = sel
	}
	return node, nil
}

// Data decodes a create or update payload. Unknown fields are kept so that
// the mutation layer reports them with their input path.
func (d *Decoder) Data(entity *schema.Entity, raw any) (ast.DataInput, error) {
	m, err := asMap(raw)
	if err != nil {
		return ast.DataInput{}, fmt.Errorf("data: %w", err)
	}
	data := ast.DataInput{}
	for _, key := range sortedKeys(m) {
		v := m[key]
		f, err := entity.Field(key)
		if err != nil {
			if data.Columns == nil {
				data.Columns = make(map[string]any)
			}
			data.Columns[key] = v
			continue
		}
		rel, ok := f.(*schema.Relation)
		if !ok {
			if data.Columns == nil {
				data.Columns = make(map[string]any)
			}
			data.Columns[key] = v
			continue
		}
		target, err := d.schema.Entity(rel.Target)
		if err != nil {
			return ast.DataInput{}, err
		}
		input, err := d.relationInput(target, v)
		if err != nil {
			return ast.DataInput{}, fmt.Errorf("%s: %w", key, err)
		}
		if data.Relations == nil {
			data.Relations = make(map[string]ast.RelationInput)
		}
		data.Relations[key] = input
	}
	return data, nil
}

// relationInput decodes one item {connect: ...} or a list of items
func (d *Decoder) relationInput(target *schema.Entity, raw any) (ast.RelationInput, error) {
	if list, ok := raw.([]any); ok {
		input := ast.RelationInput{List: true}
		for i, v := range list {
			item, err := d.relationItem(target, v)
			if err != nil {
				return ast.RelationInput{}, fmt.Errorf("[%d]: %w", i, err)
			}
			input.Items = append(input.Items, item)
		}
		return input, nil
	}
	item, err := d.relationItem(target, raw)
	if err != nil {
		return ast.RelationInput{}, err
	}
	return ast.RelationInput{Items: []ast.RelationItem{item}}, nil
}

func (d *Decoder) relationItem(target *schema.Entity, raw any) (ast.RelationItem, error) {
	m, err := asMap(raw)
	if err != nil {
		return ast.RelationItem{}, err
	}
	item := ast.RelationItem{}
	for _, key := range sortedKeys(m) {
		v := m[key]
		if key == "alias" {
			s, ok := v.(string)
			if !ok {
				return ast.RelationItem{}, fmt.Errorf("alias: expected a string, got %T", v)
			}
			item.Alias = s
			continue
		}
		op, err := d.operation(target, ast.OperationKind(key), v)
		if err != nil {
			return ast.RelationItem{}, fmt.Errorf("%s: %w", key, err)
		}
		item.Operations = append(item.Operations, op)
	}
	return item, nil
}

func (d *Decoder) operation(target *schema.Entity, kind ast.OperationKind, v any) (ast.Operation, error) {
	switch kind {
	case ast.OperationConnect, ast.OperationDelete, ast.OperationDisconnect:
		var by ast.UniqueWhere
		// delete and disconnect of a to-one relation take `true`
		if b, ok := v.(bool); ok && kind != ast.OperationConnect {
			if !b {
				return nil, fmt.Errorf("expected true or a unique lookup")
			}
		} else {
			var err error
			if by, err = UniqueWhere(v); err != nil {
				return nil, err
			}
		}
		switch kind {
		case ast.OperationConnect:
			return ast.Connect{By: by}, nil
		case ast.OperationDelete:
			return ast.Delete{By: by}, nil
		}
		return ast.Disconnect{By: by}, nil

	case ast.OperationCreate:
		data, err := d.Data(target, v)
		if err != nil {
			return nil, err
		}
		return ast.Create{Data: data}, nil

	case ast.OperationUpdate, ast.OperationUpsert:
		m, err := asMap(v)
		if err != nil {
			return nil, err
		}
		var by ast.UniqueWhere
		if raw, ok := m["by"]; ok {
			if by, err = UniqueWhere(raw); err != nil {
				return nil, fmt.Errorf("by: %w", err)
			}
		}
		if kind == ast.OperationUpdate {
			data, err := d.Data(target, m["data"])
			if err != nil {
				return nil, err
			}
			return ast.Update{By: by, Data: data}, nil
		}
		update, err := d.Data(target, m["update"])
		if err != nil {
			return nil, err
		}
		create, err := d.Data(target, m["create"])
		if err != nil {
			return nil, err
		}
		return ast.Upsert{By: by, Update: update, Create: create}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", kind)
}
