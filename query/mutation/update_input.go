package mutation

import (
	"context"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

// UpdateInputVisitor walks the payload of an updated row
type UpdateInputVisitor struct {
	processor *UpdateInputProcessor
	ctx       context.Context
	data      ast.DataInput
	path      Path
	values    map[string]any
	after     []func() error
}

var _ schema.FieldVisitor[error] = (*UpdateInputVisitor)(nil)

func (v *UpdateInputVisitor) VisitColumn(entity *schema.Entity, column *schema.Column) error {
	v.values[column.Name] = v.data.Columns[column.Name]
	return nil
}

func (v *UpdateInputVisitor) VisitManyHasOne(rc schema.RelationContext) error {
	return v.toOneOwning(rc)
}

func (v *UpdateInputVisitor) VisitOneHasOneOwning(rc schema.RelationContext) error {
	return v.toOneOwning(rc)
}

func (v *UpdateInputVisitor) VisitOneHasOneInverse(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.ToOneInverse)
}

func (v *UpdateInputVisitor) VisitOneHasMany(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.OneHasMany)
}

func (v *UpdateInputVisitor) VisitManyHasManyOwning(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.ManyHasMany)
}

func (v *UpdateInputVisitor) VisitManyHasManyInverse(rc schema.RelationContext) error {
	return v.deferred(rc, v.processor.ManyHasMany)
}

func (v *UpdateInputVisitor) toOneOwning(rc schema.RelationContext) error {
	ops, err := relationOps(v.path, rc, v.data.Relations[rc.Relation.Name])
	if err != nil {
		return err
	}
	for _, r := range ops {
		change, err := v.processor.ToOneOwning(v.ctx, rc, r)
		if err != nil {
			return err
		}
		if change.set {
			v.values[rc.Relation.Name] = change.value
		}
		if change.after != nil {
			v.after = append(v.after, change.after)
		}
	}
	return nil
}

func (v *UpdateInputVisitor) deferred(rc schema.RelationContext, fn func(context.Context, schema.RelationContext, relationOp) error) error {
	ops, err := relationOps(v.path, rc, v.data.Relations[rc.Relation.Name])
	if err != nil {
		return err
	}
	for _, r := range ops {
		r := r
		v.after = append(v.after, func() error {
			return fn(v.ctx, rc, r)
		})
	}
	return nil
}

// foreignKeyChange is the effect of a to-one operation on the owning row
type foreignKeyChange struct {
	set   bool
	value any
	after func() error
}

// UpdateInputProcessor performs the nested writes of an updated row
type UpdateInputProcessor struct {
	w      *writer
	entity *schema.Entity
	pk     any
}

func (p *UpdateInputProcessor) self() ast.UniqueWhere {
	return ast.UniqueWhere{p.entity.PrimaryField: p.pk}
}

// linked reads the foreign key stored on the updated row
func (p *UpdateInputProcessor) linked(ctx context.Context, rc schema.RelationContext, path Path) (any, error) {
	row, err := p.w.mapper.SelectColumns(ctx, p.entity, p.pk, []string{rc.Relation.Name})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, notFound(path, p.entity.Name)
	}
	return row[rc.Relation.Name], nil
}

// ToOneOwning handles a relation whose foreign key lives on the updated row
func (p *UpdateInputProcessor) ToOneOwning(ctx context.Context, rc schema.RelationContext, r relationOp) (foreignKeyChange, error) {
	logOperation(rc, r.op)
	target := rc.TargetEntity
	switch op := r.op.(type) {
	case ast.Connect:
		pk, err := p.w.primary(ctx, target, op.By, r.path)
		return foreignKeyChange{set: true, value: pk}, err

	case ast.Create:
		pk, err := p.w.create(ctx, target, op.Data, nil, r.path)
		return foreignKeyChange{set: true, value: pk}, err

	case ast.Update:
		current, err := p.linked(ctx, rc, r.path)
		if err != nil {
			return foreignKeyChange{}, err
		}
		if current == nil {
			return foreignKeyChange{}, notFound(r.path, target.Name)
		}
		return foreignKeyChange{}, p.w.update(ctx, target, current, op.Data, nil, r.path)

	case ast.Upsert:
		current, err := p.linked(ctx, rc, r.path)
		if err != nil {
			return foreignKeyChange{}, err
		}
		if current == nil {
			pk, err := p.w.create(ctx, target, op.Create, nil, r.path)
			return foreignKeyChange{set: true, value: pk}, err
		}
		return foreignKeyChange{}, p.w.update(ctx, target, current, op.Update, nil, r.path)

	case ast.Delete:
		if !rc.Relation.Nullable {
			return foreignKeyChange{}, required(r.path, rc)
		}
		current, err := p.linked(ctx, rc, r.path)
		if err != nil {
			return foreignKeyChange{}, err
		}
		if current == nil {
			return foreignKeyChange{}, notFound(r.path, target.Name)
		}
		return foreignKeyChange{set: true, after: func() error {
			return translate(r.path, p.w.mapper.Delete(ctx, target, current))
		}}, nil

	case ast.Disconnect:
		if !rc.Relation.Nullable {
			return foreignKeyChange{}, required(r.path, rc)
		}
		return foreignKeyChange{set: true}, nil
	}
	return foreignKeyChange{}, unsupported(r.path, rc, r.op)
}

// ToOneInverse handles a one-has-one relation whose foreign key lives on the target
func (p *UpdateInputProcessor) ToOneInverse(ctx context.Context, rc schema.RelationContext, r relationOp) error {
	logOperation(rc, r.op)
	target, owning := rc.TargetEntity, rc.TargetRelation
	if owning == nil {
		return &schema.ConsistencyError{Entity: rc.Entity.Name, Field: rc.Relation.Name, Message: "inverse relation without owning side"}
	}
	current, err := p.w.single(ctx, target, relationWhere(owning.Name, p.entity.PrimaryField, p.pk), r.path)
	if err != nil {
		return err
	}
	unlink := func() error {
		if current == nil {
			return nil
		}
		if !owning.Nullable {
			return required(r.path, rc)
		}
		_, err := p.w.mapper.Update(ctx, target, current, map[string]any{owning.Name: nil})
		return translate(r.path, err)
	}

	switch op := r.op.(type) {
	case ast.Connect:
		pk, err := p.w.primary(ctx, target, op.By, r.path)
		if err != nil {
			return err
		}
		if current != nil && sqlgen.Key(current) == sqlgen.Key(pk) {
			return nil
		}
		if err := unlink(); err != nil {
			return err
		}
		_, err = p.w.mapper.Update(ctx, target, pk, map[string]any{owning.Name: p.pk})
		return translate(r.path, err)

	case ast.Create:
		if err := unlink(); err != nil {
			return err
		}
		_, err := p.w.create(ctx, target, op.Data, map[string]any{owning.Name: p.pk}, r.path)
		return err

	case ast.Update:
		if current == nil {
			return notFound(r.path, target.Name)
		}
		return p.w.update(ctx, target, current, op.Data, nil, r.path)

	case ast.Upsert:
		if current == nil {
			_, err := p.w.create(ctx, target, op.Create, map[string]any{owning.Name: p.pk}, r.path)
			return err
		}
		return p.w.update(ctx, target, current, op.Update, nil, r.path)

	case ast.Delete:
		if current == nil {
			return notFound(r.path, target.Name)
		}
		return translate(r.path, p.w.mapper.Delete(ctx, target, current))

	case ast.Disconnect:
		return unlink()
	}
	return unsupported(r.path, rc, r.op)
}

// member resolves a unique lookup among the rows linked to the updated row
func (p *UpdateInputProcessor) member(ctx context.Context, rc schema.RelationContext, by ast.UniqueWhere, path Path) (any, error) {
	if err := requireBy(path, rc, by); err != nil {
		return nil, err
	}
	if err := p.w.schema.ResolveUnique(rc.TargetEntity, by); err != nil {
		return nil, malformed(path, err)
	}
	where := by.ToWhere()
	if rc.TargetRelation != nil {
		where = ast.AndWhere(where, relationWhere(rc.TargetRelation.Name, p.entity.PrimaryField, p.pk))
		return p.w.single(ctx, rc.TargetEntity, where, path)
	}
	if rc.Relation.Kind != schema.ManyHasManyOwning {
		return nil, &schema.ConsistencyError{Entity: rc.Entity.Name, Field: rc.Relation.Name, Message: "relation has no target side"}
	}
	// a one-directional many-has-many is scoped through its junction table
	pks, err := p.w.mapper.FindLinked(ctx, rc.Entity, rc.Relation, p.pk, rc.TargetEntity, where)
	return p.w.pick(rc.TargetEntity, pks, err, path)
}

// OneHasMany handles a to-many relation whose foreign key lives on the target rows
func (p *UpdateInputProcessor) OneHasMany(ctx context.Context, rc schema.RelationContext, r relationOp) error {
	logOperation(rc, r.op)
	target, owning := rc.TargetEntity, rc.TargetRelation
	if owning == nil {
		return &schema.ConsistencyError{Entity: rc.Entity.Name, Field: rc.Relation.Name, Message: "inverse relation without owning side"}
	}
	link := map[string]any{owning.Name: p.pk}

	switch op := r.op.(type) {
	case ast.Connect:
		pk, err := p.w.primary(ctx, target, op.By, r.path)
		if err != nil {
			return err
		}
		_, err = p.w.mapper.Update(ctx, target, pk, link)
		return translate(r.path, err)

	case ast.Create:
		_, err := p.w.create(ctx, target, op.Data, link, r.path)
		return err

	case ast.Update:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk == nil {
			return notFound(r.path, target.Name)
		}
		return p.w.update(ctx, target, pk, op.Data, nil, r.path)

	case ast.Upsert:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk == nil {
			_, err := p.w.create(ctx, target, op.Create, link, r.path)
			return err
		}
		return p.w.update(ctx, target, pk, op.Update, nil, r.path)

	case ast.Delete:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk == nil {
			return notFound(r.path, target.Name)
		}
		return translate(r.path, p.w.mapper.Delete(ctx, target, pk))

	case ast.Disconnect:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk == nil {
			return notFound(r.path, target.Name)
		}
		if !owning.Nullable {
			return required(r.path, rc)
		}
		_, err = p.w.mapper.Update(ctx, target, pk, map[string]any{owning.Name: nil})
		return translate(r.path, err)
	}
	return unsupported(r.path, rc, r.op)
}

// ManyHasMany handles a relation stored in a junction table
func (p *UpdateInputProcessor) ManyHasMany(ctx context.Context, rc schema.RelationContext, r relationOp) error {
	logOperation(rc, r.op)
	target := rc.TargetEntity
	connect := func(pk any) error {
		by := ast.UniqueWhere{target.PrimaryField: pk}
		return translate(r.path, p.w.junctions.Connect(ctx, rc.Entity, rc.Relation, p.self(), by))
	}

	switch op := r.op.(type) {
	case ast.Connect:
		if err := p.w.schema.ResolveUnique(target, op.By); err != nil {
			return malformed(r.path, err)
		}
		return translate(r.path, p.w.junctions.Connect(ctx, rc.Entity, rc.Relation, p.self(), op.By))

	case ast.Create:
		pk, err := p.w.create(ctx, target, op.Data, nil, r.path)
		if err != nil {
			return err
		}
		return connect(pk)

	case ast.Update:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk == nil {
			return notFound(r.path, target.Name)
		}
		return p.w.update(ctx, target, pk, op.Data, nil, r.path)

	case ast.Upsert:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk != nil {
			return p.w.update(ctx, target, pk, op.Update, nil, r.path)
		}
		pk, err = p.w.create(ctx, target, op.Create, nil, r.path)
		if err != nil {
			return err
		}
		return connect(pk)

	case ast.Delete:
		pk, err := p.member(ctx, rc, op.By, r.path)
		if err != nil {
			return err
		}
		if pk == nil {
			return notFound(r.path, target.Name)
		}
		by := ast.UniqueWhere{target.PrimaryField: pk}
		if err := p.w.junctions.Disconnect(ctx, rc.Entity, rc.Relation, p.self(), by); err != nil {
			return translate(r.path, err)
		}
		return translate(r.path, p.w.mapper.Delete(ctx, target, pk))

	case ast.Disconnect:
		if err := requireBy(r.path, rc, op.By); err != nil {
			return err
		}
		if err := p.w.schema.ResolveUnique(target, op.By); err != nil {
			return malformed(r.path, err)
		}
		return translate(r.path, p.w.junctions.Disconnect(ctx, rc.Entity, rc.Relation, p.self(), op.By))
	}
	return unsupported(r.path, rc, r.op)
}
