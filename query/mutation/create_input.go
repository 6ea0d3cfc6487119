package mutation

import (
	"context"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
)

// CreateInputVisitor walks the payload of a created row. Column values and
// owning foreign keys are collected before the insert; writes that need the
// new primary key are deferred until after it.
type CreateInputVisitor struct {
	processor *CreateInputProcessor
	ctx       context.Context
	data      ast.DataInput
	path      Path
	values    map[string]any
	after     []func(pk any) error
}

var _ schema.FieldVisitor[error] = (*CreateInputVisitor)(nil)

func (v *CreateInputVisitor) VisitColumn(entity *schema.Entity, column *schema.Column) error {
	v.values[column.Name] = v.data.Columns[column.Name]
	return nil
}

func (v *CreateInputVisitor) VisitManyHasOne(rc schema.RelationContext) error {
	return v.toOneOwning(rc)
}

func (v *CreateInputVisitor) VisitOneHasOneOwning(rc schema.RelationContext) error {
	return v.toOneOwning(rc)
}

func (v *CreateInputVisitor) VisitOneHasOneInverse(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.Inverse)
}

func (v *CreateInputVisitor) VisitOneHasMany(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.Inverse)
}

func (v *CreateInputVisitor) VisitManyHasManyOwning(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.ManyHasMany)
}

func (v *CreateInputVisitor) VisitManyHasManyInverse(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.ManyHasMany)
}

// operations validates the relation payload; a new row can only connect or create
func (v *CreateInputVisitor) operations(rc schema.RelationContext) ([]relationOp, error) {
	ops, err := relationOps(v.path, rc, v.data.Relations[rc.Relation.Name])
	if err != nil {
		return nil, err
	}
	for _, r := range ops {
		switch r.op.(type) {
		case ast.Connect, ast.Create:
		default:
			return nil, unsupported(r.path, rc, r.op)
		}
	}
	return ops, nil
}

func (v *CreateInputVisitor) toOneOwning(rc schema.RelationContext) error {
	ops, err := v.operations(rc)
	if err != nil {
		return err
	}
	for _, r := range ops {
		pk, err := v.processor.ToOneOwning(v.ctx, rc, r)
		if err != nil {
			return err
		}
		v.values[rc.Relation.Name] = pk
	}
	return nil
}

func (v *CreateInputVisitor) deferred(rc schema.RelationContext, fn func(context.Context, schema.RelationContext, relationOp, any) error) error {
	ops, err := v.operations(rc)
	if err != nil {
		return err
	}
	for _, r := range ops {
		r := r
		v.after = append(v.after, func(pk any) error {
			return fn(v.ctx, rc, r, pk)
		})
	}
	return nil
}

// CreateInputProcessor performs the nested writes of a created row
type CreateInputProcessor struct {
	w *writer
}

// ToOneOwning resolves the target of an owning to-one relation and returns its primary value
func (p *CreateInputProcessor) ToOneOwning(ctx context.Context, rc schema.RelationContext, r relationOp) (any, error) {
	logOperation(rc, r.op)
	switch op := r.op.(type) {
	case ast.Connect:
		return p.w.primary(ctx, rc.TargetEntity, op.By, r.path)
	case ast.Create:
		return p.w.create(ctx, rc.TargetEntity, op.Data, nil, r.path)
	}
	return nil, unsupported(r.path, rc, r.op)
}

// Inverse points the foreign key of the target at the new row
func (p *CreateInputProcessor) Inverse(ctx context.Context, rc schema.RelationContext, r relationOp, pk any) error {
	logOperation(rc, r.op)
	owning := rc.TargetRelation
	if owning == nil {
		return &schema.ConsistencyError{Entity: rc.Entity.Name, Field: rc.Relation.Name, Message: "inverse relation without owning side"}
	}
	switch op := r.op.(type) {
	case ast.Connect:
		target, err := p.w.primary(ctx, rc.TargetEntity, op.By, r.path)
		if err != nil {
			return err
		}
		_, err = p.w.mapper.Update(ctx, rc.TargetEntity, target, map[string]any{owning.Name: pk})
		return translate(r.path, err)
	case ast.Create:
		_, err := p.w.create(ctx, rc.TargetEntity, op.Data, map[string]any{owning.Name: pk}, r.path)
		return err
	}
	return unsupported(r.path, rc, r.op)
}

// ManyHasMany links the new row through the junction table
func (p *CreateInputProcessor) ManyHasMany(ctx context.Context, rc schema.RelationContext, r relationOp, pk any) error {
	logOperation(rc, r.op)
	self := ast.UniqueWhere{rc.Entity.PrimaryField: pk}
	switch op := r.op.(type) {
	case ast.Connect:
		if err := p.w.schema.ResolveUnique(rc.TargetEntity, op.By); err != nil {
			return malformed(r.path, err)
		}
		return translate(r.path, p.w.junctions.Connect(ctx, rc.Entity, rc.Relation, self, op.By))
	case ast.Create:
		target, err := p.w.create(ctx, rc.TargetEntity, op.Data, nil, r.path)
		if err != nil {
			return err
		}
		by := ast.UniqueWhere{rc.TargetEntity.PrimaryField: target}
		return translate(r.path, p.w.junctions.Connect(ctx, rc.Entity, rc.Relation, self, by))
	}
	return unsupported(r.path, rc, r.op)
}
