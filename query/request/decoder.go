// Package request decodes YAML and JSON request documents into query and
// mutation trees, resolving every name against the schema.
package request

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

// QueryKind selects between list and unique reads
type QueryKind string

const (
	QueryList QueryKind = "list"
	QueryGet  QueryKind = "get"
)

// Query is a decoded root read
type Query struct {
	Kind   QueryKind
	Entity string
	Node   *ast.QueryNode
}

// Document is a decoded request
type Document struct {
	Role      string
	Variables map[string][]any
	Queries   []Query
	Mutations []*ast.MutationNode
}

type document struct {
	Role      string           `yaml:"role"`
	Variables map[string]any   `yaml:"variables"`
	Query     []map[string]any `yaml:"query"`
	Mutation  []map[string]any `yaml:"mutation"`
}

// Decoder turns request documents into typed trees for one schema
type Decoder struct {
	schema *schema.Schema
}

// NewDecoder creates a decoder for s
func NewDecoder(s *schema.Schema) *Decoder {
	return &Decoder{schema: s}
}

// Decode parses a YAML or JSON request document
func (d *Decoder) Decode(data []byte) (*Document, error) {
	var raw document
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	doc := &Document{Role: raw.Role, Variables: Variables(raw.Variables)}

	for i, item := range raw.Query {
		name, body, err := single(item)
		if err != nil {
			return nil, fmt.Errorf("query[%d]: %w", i, err)
		}
		q, err := d.rootQuery(name, body)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		doc.Queries = append(doc.Queries, q)
	}
	for i, item := range raw.Mutation {
		name, body, err := single(item)
		if err != nil {
			return nil, fmt.Errorf("mutation[%d]: %w", i, err)
		}
		m, err := d.rootMutation(name, body)
		if err != nil {
			return nil, fmt.Errorf("mutation %s: %w", name, err)
		}
		doc.Mutations = append(doc.Mutations, m)
	}
	return doc, nil
}

// Variables normalises variable values to lists
func Variables(raw map[string]any) map[string][]any {
	out := make(map[string][]any, len(raw))
	for k, v := range raw {
		if list, ok := v.([]any); ok {
			out[k] = list
			continue
		}
		out[k] = []any{v}
	}
	return out
}

func (d *Decoder) rootQuery(name string, body any) (Query, error) {
	var kind QueryKind
	var entityName string
	switch {
	case strings.HasPrefix(name, "list"):
		kind, entityName = QueryList, strings.TrimPrefix(name, "list")
	case strings.HasPrefix(name, "get"):
		kind, entityName = QueryGet, strings.TrimPrefix(name, "get")
	default:
		return Query{}, fmt.Errorf("unknown operation, expected list<Entity> or get<Entity>")
	}
	entity, err := d.schema.Entity(entityName)
	if err != nil {
		return Query{}, err
	}
	node, err := d.queryNode(entity, name, body)
	if err != nil {
		return Query{}, err
	}
	if kind == QueryGet && len(node.Args.By) == 0 {
		return Query{}, fmt.Errorf("get requires by")
	}
	return Query{Kind: kind, Entity: entity.Name, Node: node}, nil
}

// queryNode decodes {alias, filter, orderBy, limit, offset, by, fields}
func (d *Decoder) queryNode(entity *schema.Entity, name string, body any) (*ast.QueryNode, error) {
	m, err := asMap(body)
	if err != nil {
		return nil, err
	}
	node := &ast.QueryNode{Name: name}
	if alias, ok := m["alias"].(string); ok {
		node.Alias = alias
	}
	if v, ok := m["filter"]; ok {
		w, err := d.Where(entity, v)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		node.Args.Filter = &w
	}
	if v, ok := m["orderBy"]; ok {
		if node.Args.OrderBy, err = OrderBy(v); err != nil {
			return nil, err
		}
	}
	for _, key := range []string{"limit", "offset"} {
		v, ok := m[key]
		if !ok {
			continue
		}
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("%s: expected an integer, got %T", key, v)
		}
		if key == "limit" {
			node.Args.Limit = ast.IntPtr(n)
		} else {
			node.Args.Offset = ast.IntPtr(n)
		}
	}
	if v, ok := m["by"]; ok {
		if node.Args.By, err = UniqueWhere(v); err != nil {
			return nil, fmt.Errorf("by: %w", err)
		}
	}

	fields, err := asList(m["fields"])
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	for i, f := range fields {
		child, err := d.field(entity, f)
		if err != nil {
			return nil, fmt.Errorf("fields[%d]: %w", i, err)
		}
		node.Fields = append(node.Fields, child)
	}
	return node, nil
}

// field decodes "title", {title: {alias: heading}} or {author: {fields: [...]}}
func (d *Decoder) field(entity *schema.Entity, raw any) (ast.Node, error) {
	if name, ok := raw.(string); ok {
		return d.named(entity, name, nil)
	}
	m, err := asMap(raw)
	if err != nil {
		return nil, err
	}
	name, body, err := single(m)
	if err != nil {
		return nil, err
	}
	return d.named(entity, name, body)
}

func (d *Decoder) named(entity *schema.Entity, name string, body any) (ast.Node, error) {
	if name == ast.MetaField {
		return d.meta(entity, body)
	}
	f, err := entity.Field(name)
	if err != nil {
		rel, by, ok := d.reduction(entity, name)
		if !ok {
			return nil, err
		}
		target, err := d.schema.Entity(rel.Target)
		if err != nil {
			return nil, err
		}
		node, err := d.queryNode(target, name, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(node.Args.By) != 1 || node.Args.By[by] == nil {
			return nil, fmt.Errorf("%s: by must name %s only", name, by)
		}
		if err := d.schema.ResolveReduction(entity, rel, node.Args.By); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		node.Reduction = &ast.Reduction{Relation: rel.Name, By: node.Args.By}
		node.Args.By = nil
		return node, nil
	}

	switch f := f.(type) {
	case *schema.Column:
		node := &ast.FieldNode{Name: name}
		if body != nil {
			m, err := asMap(body)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			node.Alias, _ = m["alias"].(string)
		}
		return node, nil
	case *schema.Relation:
		target, err := d.schema.Entity(f.Target)
		if err != nil {
			return nil, err
		}
		node, err := d.queryNode(target, name, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return node, nil
	}
	return nil, &schema.ConsistencyError{Entity: entity.Name, Field: name, Message: "unknown field type"}
}

// reduction recognises <relation>By<Field> names of to-many relations
func (d *Decoder) reduction(entity *schema.Entity, name string) (*schema.Relation, string, bool) {
	idx := strings.LastIndex(name, "By")
	if idx <= 0 || idx+2 >= len(name) {
		return nil, "", false
	}
	rel, err := entity.Relation(name[:idx])
	if err != nil || !rel.Kind.IsToMany() {
		return nil, "", false
	}
	key := []rune(name[idx+2:])
	key[0] = unicode.ToLower(key[0])
	return rel, string(key), true
}

// meta decodes "_meta" (every requested column) or {_meta: {fields: [title]}}
func (d *Decoder) meta(entity *schema.Entity, body any) (ast.Node, error) {
	node := &ast.QueryNode{Name: ast.MetaField}
	if body == nil {
		return node, nil
	}
	m, err := asMap(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ast.MetaField, err)
	}
	fields, err := asList(m["fields"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ast.MetaField, err)
	}
	for _, f := range fields {
		child, err := d.metaField(entity, f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ast.MetaField, err)
		}
		node.Fields = append(node.Fields, child)
	}
	return node, nil
}

// metaField decodes "title" (both flags) or {title: [readable]}
func (d *Decoder) metaField(entity *schema.Entity, raw any) (ast.Node, error) {
	if name, ok := raw.(string); ok {
		if _, err := entity.Field(name); err != nil {
			return nil, err
		}
		return &ast.FieldNode{Name: name}, nil
	}
	m, err := asMap(raw)
	if err != nil {
		return nil, err
	}
	name, body, err := single(m)
	if err != nil {
		return nil, err
	}
	if _, err := entity.Field(name); err != nil {
		return nil, err
	}
	flags, err := asList(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	node := &ast.QueryNode{Name: name}
	for _, flag := range flags {
		s, ok := flag.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected a flag name, got %T", name, flag)
		}
		node.Fields = append(node.Fields, &ast.FieldNode{Name: s})
	}
	return node, nil
}

func single(m map[string]any) (string, any, error) {
	if len(m) != 1 {
		return "", nil, fmt.Errorf("expected exactly one key, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}
