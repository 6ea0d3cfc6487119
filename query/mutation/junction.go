package mutation

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/builder"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

const (
	owningAlias  = "owning_"
	inverseAlias = "inverse_"
)

// JunctionTableManager links and unlinks rows of a many-has-many relation
type JunctionTableManager struct {
	schema  *schema.Schema
	db      DB
	factory *acl.PredicateFactory
	where   *builder.WhereBuilder
}

// NewJunctionTableManager creates a manager writing through db
func NewJunctionTableManager(s *schema.Schema, db DB, factory *acl.PredicateFactory) *JunctionTableManager {
	return &JunctionTableManager{
		schema:  s,
		db:      db,
		factory: factory,
		where:   builder.NewWhereBuilder(s, builder.NewJoinBuilder(s), builder.NewPathFactory()),
	}
}

// junctionSides is a many-has-many link normalised to its owning side
type junctionSides struct {
	table        schema.JoiningTable
	owner        *schema.Entity
	owningRel    *schema.Relation
	inverse      *schema.Entity
	inverseRel   *schema.Relation
	ownerBy      ast.UniqueWhere
	inverseBy    ast.UniqueWhere
	ownerPred    ast.Where
	inversePred  ast.Where
	ownerValue   any
	inverseValue any
}

func (j *JunctionTableManager) sides(entity *schema.Entity, rel *schema.Relation, by, targetBy ast.UniqueWhere) (*junctionSides, error) {
	if rel.Kind != schema.ManyHasManyOwning && rel.Kind != schema.ManyHasManyInverse {
		return nil, &schema.ConsistencyError{Entity: entity.Name, Field: rel.Name, Message: "not a many-has-many relation"}
	}
	owner, owningRel, err := j.schema.OwningSide(entity, rel)
	if err != nil {
		return nil, err
	}
	inverse, inverseRel, err := j.schema.OtherSide(owningRel)
	if err != nil {
		return nil, err
	}
	s := &junctionSides{
		table:      owningRel.JoiningTable,
		owner:      owner,
		owningRel:  owningRel,
		inverse:    inverse,
		inverseRel: inverseRel,
		ownerBy:    by,
		inverseBy:  targetBy,
	}
	if rel.Kind == schema.ManyHasManyInverse {
		s.ownerBy, s.inverseBy = targetBy, by
	}

	if s.ownerPred, err = j.factory.Create(owner, schema.OperationUpdate, []string{owningRel.Name}); err != nil {
		return nil, err
	}
	if inverseRel != nil {
		if s.inversePred, err = j.factory.Create(inverse, schema.OperationUpdate, []string{inverseRel.Name}); err != nil {
			return nil, err
		}
	}
	s.ownerValue, _ = owner.IsPrimaryLookup(s.ownerBy)
	s.inverseValue, _ = inverse.IsPrimaryLookup(s.inverseBy)
	return s, nil
}

// direct reports whether both rows are addressed by primary key and no predicate applies
func (s *junctionSides) direct() bool {
	return s.ownerValue != nil && s.inverseValue != nil && s.ownerPred.IsEmpty() && s.inversePred.IsEmpty()
}

func (s *junctionSides) denied() bool {
	return s.ownerPred.IsNever() || s.inversePred.IsNever()
}

// Connect inserts the junction row linking the owner found by by with the target found by targetBy
func (j *JunctionTableManager) Connect(ctx context.Context, entity *schema.Entity, rel *schema.Relation, by, targetBy ast.UniqueWhere) error {
	s, err := j.sides(entity, rel, by, targetBy)
	if err != nil {
		return err
	}
	if s.denied() {
		return fmt.Errorf("connect %s.%s: %w", s.owner.Name, s.owningRel.Name, acl.ErrNotFoundOrDenied)
	}
	if s.direct() {
		q, err := sqlgen.Build(sqlgen.Statement.
			Insert(sqlgen.QuoteIdent(s.table.TableName)).
			Columns(sqlgen.QuoteIdent(s.table.JoiningColumn), sqlgen.QuoteIdent(s.table.InverseJoiningColumn)).
			Values(s.ownerValue, s.inverseValue).
			Suffix("ON CONFLICT DO NOTHING"))
		if err != nil {
			return err
		}
		_, err = j.db.Exec(ctx, q)
		return err
	}

	data, err := j.data(s)
	if err != nil {
		return err
	}
	insert := sqlgen.Statement.
		Insert(sqlgen.QuoteIdent(s.table.TableName)).
		Columns(sqlgen.QuoteIdent(s.table.JoiningColumn), sqlgen.QuoteIdent(s.table.InverseJoiningColumn)).
		Select(sqlgen.Statement.Select(`"data"."owning"`, `"data"."inverse"`).From(`"data"`)).
		Suffix("ON CONFLICT DO NOTHING RETURNING true")
	stmt := sqlgen.With("data", data).
		With("inserted", insert).
		Statement(sqlgen.Raw(`SELECT EXISTS (SELECT 1 FROM "data") AS "selected", EXISTS (SELECT 1 FROM "inserted") AS "inserted"`))
	return j.run(ctx, s, stmt, "inserted")
}

// Disconnect removes the junction row linking the owner found by by with the target found by targetBy
func (j *JunctionTableManager) Disconnect(ctx context.Context, entity *schema.Entity, rel *schema.Relation, by, targetBy ast.UniqueWhere) error {
	s, err := j.sides(entity, rel, by, targetBy)
	if err != nil {
		return err
	}
	if s.denied() {
		return fmt.Errorf("disconnect %s.%s: %w", s.owner.Name, s.owningRel.Name, acl.ErrNotFoundOrDenied)
	}
	if s.direct() {
		q, err := sqlgen.Build(sqlgen.Statement.
			Delete(sqlgen.QuoteIdent(s.table.TableName)).
			Where(sq.Eq{sqlgen.QuoteIdent(s.table.JoiningColumn): s.ownerValue}).
			Where(sq.Eq{sqlgen.QuoteIdent(s.table.InverseJoiningColumn): s.inverseValue}))
		if err != nil {
			return err
		}
		_, err = j.db.Exec(ctx, q)
		return err
	}

	data, err := j.data(s)
	if err != nil {
		return err
	}
	table := sqlgen.QuoteIdent(s.table.TableName)
	del := sqlgen.Raw(fmt.Sprintf(`DELETE FROM %s USING "data" WHERE %s."%s" = "data"."owning" AND %s."%s" = "data"."inverse" RETURNING true`,
		table, table, s.table.JoiningColumn, table, s.table.InverseJoiningColumn))
	stmt := sqlgen.With("data", data).
		With("deleted", del).
		Statement(sqlgen.Raw(`SELECT EXISTS (SELECT 1 FROM "data") AS "selected", EXISTS (SELECT 1 FROM "deleted") AS "deleted"`))
	return j.run(ctx, s, stmt, "deleted")
}

// data selects the primary values of both rows, restricted by lookups and update predicates
func (j *JunctionTableManager) data(s *junctionSides) (sq.Sqlizer, error) {
	owning := builder.NewRootPath(owningAlias)
	inverse := builder.NewRootPath(inverseAlias)

	ownerCond, ownerJoins, err := j.where.Build(s.owner, owning, ast.AndWhere(s.ownerBy.ToWhere(), s.ownerPred), builder.WhereOptions{})
	if err != nil {
		return nil, err
	}
	inverseCond, inverseJoins, err := j.where.Build(s.inverse, inverse, ast.AndWhere(s.inverseBy.ToWhere(), s.inversePred), builder.WhereOptions{})
	if err != nil {
		return nil, err
	}

	joins := builder.Joins{}.
		Add(builder.Join{Type: builder.CrossJoin, Table: s.inverse.TableName, Alias: inverse.Alias()}).
		Merge(ownerJoins).
		Merge(inverseJoins)

	sb := sqlgen.Statement.
		Select().
		Column(sqlgen.As(sqlgen.Raw(sqlgen.Column(owning.Alias(), s.owner.PrimaryColumn)), "owning")).
		Column(sqlgen.As(sqlgen.Raw(sqlgen.Column(inverse.Alias(), s.inverse.PrimaryColumn)), "inverse")).
		From(sqlgen.Table(s.owner.TableName, owning.Alias()))
	sb = joins.Apply(sb)
	if ownerCond != nil {
		sb = sb.Where(ownerCond)
	}
	if inverseCond != nil {
		sb = sb.Where(inverseCond)
	}
	return sb, nil
}

func (j *JunctionTableManager) run(ctx context.Context, s *junctionSides, stmt sq.Sqlizer, flag string) error {
	q, err := sqlgen.Build(stmt)
	if err != nil {
		return err
	}
	rows, err := j.db.Select(ctx, q)
	if err != nil {
		return err
	}
	if len(rows) == 0 || !sqlgen.Truthy(rows[0]["selected"]) {
		return fmt.Errorf("%s.%s: %w", s.owner.Name, s.owningRel.Name, acl.ErrNotFoundOrDenied)
	}
	debug.Debug("junction updated", "table", s.table.TableName, flag, sqlgen.Truthy(rows[0][flag]))
	return nil
}
