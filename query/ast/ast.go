// Package ast defines the typed request trees consumed by the query compiler.
package ast

// Node represents a requested field of an entity subtree
type Node interface {
	NodeName() string
	NodeAlias() string
	isNode()
}

// QueryNode represents an entity subtree: a root operation or a relation field
type QueryNode struct {
	Name      string
	Alias     string
	Fields    []Node
	Args      Args
	Reduction *Reduction
	Path      []string
}

func (n *QueryNode) NodeName() string { return n.Name }

// NodeAlias returns the key under which the subtree is returned
func (n *QueryNode) NodeAlias() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

func (n *QueryNode) isNode() {}

// FieldNode represents a scalar field selection
type FieldNode struct {
	Name  string
	Alias string
	Path  []string
}

func (n *FieldNode) NodeName() string { return n.Name }

// NodeAlias returns the key under which the value is returned
func (n *FieldNode) NodeAlias() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

func (n *FieldNode) isNode() {}

// Args holds list and unique lookup arguments of a query node
type Args struct {
	Filter  *Where
	OrderBy []OrderBy
	Offset  *int
	Limit   *int
	By      UniqueWhere
}

// HasWindow reports whether offset or limit was requested
func (a Args) HasWindow() bool {
	return a.Offset != nil || a.Limit != nil
}

// Reduction narrows a to-many relation to a single row by a secondary unique key
type Reduction struct {
	Relation string
	By       UniqueWhere
}

// MetaField is the reserved field name of the readable/updatable surface
const MetaField = "_meta"

// Meta flag names
const (
	MetaReadable  = "readable"
	MetaUpdatable = "updatable"
)

// FieldNames returns names of direct field nodes (not subtrees) in request order
func (n *QueryNode) FieldNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, f := range n.Fields {
		if _, ok := f.(*FieldNode); !ok {
			continue
		}
		if seen[f.NodeName()] {
			continue
		}
		seen[f.NodeName()] = true
		names = append(names, f.NodeName())
	}
	return names
}

// Meta returns the _meta subtree if requested
func (n *QueryNode) Meta() *QueryNode {
	for _, f := range n.Fields {
		if q, ok := f.(*QueryNode); ok && q.Name == MetaField {
			return q
		}
	}
	return nil
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
