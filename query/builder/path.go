// Package builder compiles filters, joins and orderings into SQL fragments.
package builder

import (
	"fmt"
	"hash/crc32"
	"strings"
	"sync/atomic"
)

// RootAlias is the alias of the top-level table of a statement
const RootAlias = "root_"

// maxIdentLen is the PostgreSQL identifier length limit
const maxIdentLen = 63

// Path addresses a table reached through a relation chain from a root alias
type Path struct {
	root   string
	fields []string
	alias  string
}

// NewRootPath creates a path for a statement root
func NewRootPath(alias string) Path {
	return Path{root: alias, alias: alias}
}

// For descends into field
func (p Path) For(field string) Path {
	fields := make([]string, len(p.fields)+1)
	copy(fields, p.fields)
	fields[len(p.fields)] = field
	return Path{root: p.root, fields: fields, alias: deriveAlias(p.alias, field)}
}

// Back removes the last segment
func (p Path) Back() Path {
	if len(p.fields) == 0 {
		return p
	}
	parent := NewRootPath(p.root)
	for _, f := range p.fields[:len(p.fields)-1] {
		parent = parent.For(f)
	}
	return parent
}

// Alias returns the SQL table alias of the path
func (p Path) Alias() string {
	return p.alias
}

// Fields returns the relation chain
func (p Path) Fields() []string {
	return append([]string(nil), p.fields...)
}

// IsRoot reports whether the path has no segments
func (p Path) IsRoot() bool {
	return len(p.fields) == 0
}

// Equal compares paths structurally
func (p Path) Equal(o Path) bool {
	if p.root != o.root || len(p.fields) != len(o.fields) {
		return false
	}
	for i := range p.fields {
		if p.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// String returns the dotted relation path
func (p Path) String() string {
	if len(p.fields) == 0 {
		return p.root
	}
	return p.root + "." + strings.Join(p.fields, ".")
}

// aliasEscape replaces "_" inside a field name so that "_" only ever separates
// segments; field names are identifiers and cannot contain it
const aliasEscape = "$"

// aliasSuffix marks generated aliases that are not relation paths
const aliasSuffix = "#"

func deriveAlias(parent, field string) string {
	field = strings.ReplaceAll(field, "_", aliasEscape)
	alias := parent + "_" + field
	if parent == "" {
		alias = field
	}
	if strings.HasSuffix(parent, "_") {
		alias = parent + field
	}
	return limitAlias(alias)
}

func limitAlias(alias string) string {
	if len(alias) <= maxIdentLen {
		return alias
	}
	sum := fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(alias)))
	return alias[:maxIdentLen-len(sum)-1] + aliasSuffix + sum
}

// PathFactory hands out root paths for sub-statements of one request
type PathFactory struct {
	next atomic.Int64
}

// NewPathFactory creates a factory scoped to one request
func NewPathFactory() *PathFactory {
	return &PathFactory{}
}

// Root returns the top-level root path
func (f *PathFactory) Root() Path {
	return NewRootPath(RootAlias)
}

// Subquery returns a fresh root for a sub-statement correlated to parent.field
func (f *PathFactory) Subquery(parent Path, field string) Path {
	n := f.next.Add(1)
	return NewRootPath(limitAlias(fmt.Sprintf("%s_%d", parent.For(field).Alias(), n)))
}
