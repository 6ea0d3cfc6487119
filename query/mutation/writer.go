package mutation

import (
	"context"
	"errors"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

// writer performs the nested writes of one request. Writes run strictly in
// sequence: owning to-one targets first, then the row, then the rows that
// point back at it.
type writer struct {
	schema    *schema.Schema
	mapper    *Mapper
	junctions *JunctionTableManager
}

// create inserts a row and its nested writes. fixed values override the payload
// and carry the foreign key of a parent created or updated one level up.
func (w *writer) create(ctx context.Context, entity *schema.Entity, data ast.DataInput, fixed map[string]any, path Path) (any, error) {
	fields, err := inputFields(entity, data)
	if err != nil {
		return nil, err
	}
	v := &CreateInputVisitor{
		processor: &CreateInputProcessor{w: w},
		ctx:       ctx,
		data:      data,
		path:      path,
		values:    make(map[string]any),
	}
	for _, name := range fields {
		if _, ok := fixed[name]; ok {
			continue
		}
		if err := accept(w.schema, entity, name, v); err != nil {
			return nil, err
		}
	}
	for k, val := range fixed {
		v.values[k] = val
	}

	pk, err := w.mapper.Insert(ctx, entity, v.values)
	if err != nil {
		return nil, translate(path, err)
	}
	for _, fn := range v.after {
		if err := fn(pk); err != nil {
			return nil, err
		}
	}
	return pk, nil
}

// update modifies the row identified by pk and runs its nested writes
func (w *writer) update(ctx context.Context, entity *schema.Entity, pk any, data ast.DataInput, fixed map[string]any, path Path) error {
	fields, err := inputFields(entity, data)
	if err != nil {
		return err
	}
	v := &UpdateInputVisitor{
		processor: &UpdateInputProcessor{w: w, entity: entity, pk: pk},
		ctx:       ctx,
		data:      data,
		path:      path,
		values:    make(map[string]any),
	}
	for _, name := range fields {
		if _, ok := fixed[name]; ok {
			continue
		}
		if err := accept(w.schema, entity, name, v); err != nil {
			return err
		}
	}
	for k, val := range fixed {
		v.values[k] = val
	}

	if _, err := w.mapper.Update(ctx, entity, pk, v.values); err != nil {
		return translate(path, err)
	}
	for _, fn := range v.after {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// upsert updates the row found by by, or creates it when no visible row matches
func (w *writer) upsert(ctx context.Context, entity *schema.Entity, by ast.UniqueWhere, update, create ast.DataInput, fixed map[string]any, path Path) (any, error) {
	if err := w.schema.ResolveUnique(entity, by); err != nil {
		return nil, malformed(path, err)
	}
	pk, ok, err := w.mapper.Exists(ctx, entity, by)
	if err != nil {
		return nil, translate(path, err)
	}
	if ok {
		return pk, w.update(ctx, entity, pk, update, fixed, path)
	}
	return w.create(ctx, entity, create, fixed, path)
}

// primary resolves a unique lookup inside a nested write
func (w *writer) primary(ctx context.Context, entity *schema.Entity, by ast.UniqueWhere, path Path) (any, error) {
	pk, err := w.mapper.PrimaryValue(ctx, entity, by)
	if err != nil {
		var ue *schema.UniqueError
		if errors.As(err, &ue) {
			return nil, malformed(path, err)
		}
		return nil, translate(path, err)
	}
	return pk, nil
}

// single returns the only visible row matching where, nil when none matches
func (w *writer) single(ctx context.Context, entity *schema.Entity, where ast.Where, path Path) (any, error) {
	pks, err := w.mapper.Find(ctx, entity, where)
	return w.pick(entity, pks, err, path)
}

// pick expects at most one primary value
func (w *writer) pick(entity *schema.Entity, pks []any, err error, path Path) (any, error) {
	if err != nil {
		return nil, translate(path, err)
	}
	switch len(pks) {
	case 0:
		return nil, nil
	case 1:
		return pks[0], nil
	}
	return nil, inputError(path, CodeAmbiguousRelation, "%s: %d rows linked where one was expected", entity.Name, len(pks))
}

func logOperation(rc schema.RelationContext, op ast.Operation) {
	debug.Debug("nested write", "entity", rc.Entity.Name, "relation", rc.Relation.Name, "op", string(op.Kind()))
}

// inputFields lists the payload fields in schema order
func inputFields(entity *schema.Entity, data ast.DataInput) ([]string, error) {
	for name := range data.Columns {
		if !entity.IsColumn(name) {
			return nil, &schema.ConsistencyError{Entity: entity.Name, Field: name, Message: "unknown column"}
		}
	}
	for name := range data.Relations {
		if _, err := entity.Relation(name); err != nil {
			return nil, err
		}
	}
	var out []string
	for _, name := range entity.FieldOrder {
		_, isCol := data.Columns[name]
		_, isRel := data.Relations[name]
		if isCol || isRel {
			out = append(out, name)
		}
	}
	return out, nil
}

func accept(s *schema.Schema, entity *schema.Entity, field string, v schema.FieldVisitor[error]) error {
	visitErr, err := schema.AcceptFieldVisitor[error](s, entity, field, v)
	if err != nil {
		return err
	}
	return visitErr
}

// relationOp is one validated nested operation with its location
type relationOp struct {
	path Path
	op   ast.Operation
}

// relationOps validates the shape of a relation payload
func relationOps(path Path, rc schema.RelationContext, input ast.RelationInput) ([]relationOp, error) {
	base := path.Field(rc.Relation.Name)
	toMany := rc.Relation.Kind.IsToMany()
	if !toMany && len(input.Items) > 1 {
		return nil, inputError(base, CodeAmbiguousRelation, "relation %s accepts a single operation, got %d", rc.Relation.Name, len(input.Items))
	}
	ops := make([]relationOp, 0, len(input.Items))
	for i, item := range input.Items {
		p := base
		if toMany || input.List {
			p = base.Item(i, item.Alias)
		}
		if len(item.Operations) != 1 {
			return nil, inputError(p, CodeInvalidOperationCount, "expected exactly one operation, got %d", len(item.Operations))
		}
		ops = append(ops, relationOp{path: p, op: item.Operations[0]})
	}
	return ops, nil
}

func unsupported(path Path, rc schema.RelationContext, op ast.Operation) error {
	return inputError(path, CodeUnsupportedOperation, "%s is not supported on %s relation %s", op.Kind(), rc.Relation.Kind, rc.Relation.Name)
}

func malformed(path Path, err error) error {
	return &InputError{Path: path, Code: CodeMalformedUniqueWhere, Message: err.Error(), Err: err}
}

func required(path Path, rc schema.RelationContext) error {
	return inputError(path, CodeRequiredRelation, "relation %s.%s cannot be unset", rc.Entity.Name, rc.Relation.Name)
}

func notFound(path Path, entity string) error {
	return inputError(path, CodeNotFoundOrDenied, "%s not found or not accessible", entity)
}

// requireBy checks the lookup of a to-many member operation
func requireBy(path Path, rc schema.RelationContext, by ast.UniqueWhere) error {
	if len(by) == 0 {
		return inputError(path, CodeMalformedUniqueWhere, "%s on %s requires a unique lookup", rc.Relation.Kind, rc.Relation.Name)
	}
	return nil
}
