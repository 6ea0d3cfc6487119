package schema

// RelationContext carries both sides of a relation for visitors
type RelationContext struct {
	Entity       *Entity
	Relation     *Relation
	TargetEntity *Entity
	// TargetRelation is the relation on the target pointing back, nil when not declared
	TargetRelation *Relation
}

// FieldVisitor handles every field shape. Adding a relation kind adds a method
// here, so every visitor must handle it before the module compiles again.
type FieldVisitor[T any] interface {
	VisitColumn(entity *Entity, column *Column) T
	VisitManyHasOne(ctx RelationContext) T
	VisitOneHasMany(ctx RelationContext) T
	VisitOneHasOneOwning(ctx RelationContext) T
	VisitOneHasOneInverse(ctx RelationContext) T
	VisitManyHasManyOwning(ctx RelationContext) T
	VisitManyHasManyInverse(ctx RelationContext) T
}

// AcceptFieldVisitor dispatches field of entity to the matching visitor method
func AcceptFieldVisitor[T any](s *Schema, entity *Entity, field string, v FieldVisitor[T]) (T, error) {
	var zero T
	f, err := entity.Field(field)
	if err != nil {
		return zero, err
	}
	switch f := f.(type) {
	case *Column:
		return v.VisitColumn(entity, f), nil
	case *Relation:
		ctx, err := s.relationContext(entity, f)
		if err != nil {
			return zero, err
		}
		switch f.Kind {
		case ManyHasOne:
			return v.VisitManyHasOne(ctx), nil
		case OneHasMany:
			return v.VisitOneHasMany(ctx), nil
		case OneHasOneOwning:
			return v.VisitOneHasOneOwning(ctx), nil
		case OneHasOneInverse:
			return v.VisitOneHasOneInverse(ctx), nil
		case ManyHasManyOwning:
			return v.VisitManyHasManyOwning(ctx), nil
		case ManyHasManyInverse:
			return v.VisitManyHasManyInverse(ctx), nil
		}
		return zero, &ConsistencyError{Entity: entity.Name, Field: field, Message: "unknown relation kind " + f.Kind.String()}
	}
	return zero, &ConsistencyError{Entity: entity.Name, Field: field, Message: "unknown field type"}
}

func (s *Schema) relationContext(entity *Entity, rel *Relation) (RelationContext, error) {
	target, other, err := s.OtherSide(rel)
	if err != nil {
		return RelationContext{}, err
	}
	return RelationContext{Entity: entity, Relation: rel, TargetEntity: target, TargetRelation: other}, nil
}
