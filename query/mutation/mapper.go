package mutation

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/builder"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

// DB runs the statements of a mutation
type DB interface {
	sqlgen.Selector
	sqlgen.Execer
}

// Mapper executes primitive row writes for one entity at a time. Updates and
// deletes are restricted by the caller's ACL predicates inside the statement.
type Mapper struct {
	schema   *schema.Schema
	db       DB
	factory  *acl.PredicateFactory
	injector *acl.PredicatesInjector
	where    *builder.WhereBuilder
	changes  *ChangeSet
}

// NewMapper creates a mapper writing through db
func NewMapper(s *schema.Schema, db DB, factory *acl.PredicateFactory, changes *ChangeSet) *Mapper {
	return &Mapper{
		schema:   s,
		db:       db,
		factory:  factory,
		injector: acl.NewPredicatesInjector(s, factory),
		where:    builder.NewWhereBuilder(s, builder.NewJoinBuilder(s), builder.NewPathFactory()),
		changes:  changes,
	}
}

// columnName maps a column or owning to-one relation to its SQL column
func columnName(entity *schema.Entity, field string) (string, error) {
	f, err := entity.Field(field)
	if err != nil {
		return "", err
	}
	switch f := f.(type) {
	case *schema.Column:
		return f.ColumnName, nil
	case *schema.Relation:
		if f.Kind == schema.ManyHasOne || f.Kind == schema.OneHasOneOwning {
			return f.JoiningColumn.ColumnName, nil
		}
	}
	return "", &schema.ConsistencyError{Entity: entity.Name, Field: field, Message: "field has no column"}
}

// orderedKeys returns the keys of values in schema field order
func orderedKeys(entity *schema.Entity, values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for _, name := range entity.FieldOrder {
		if _, ok := values[name]; ok {
			keys = append(keys, name)
		}
	}
	return keys
}

// Insert writes one row and returns its primary value. uuid primary keys are
// generated when missing; other keys come from the column default.
func (m *Mapper) Insert(ctx context.Context, entity *schema.Entity, values map[string]any) (any, error) {
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	generated := false
	if _, ok := row[entity.PrimaryField]; !ok && entity.PrimaryColumnType() == schema.TypeUUID {
		row[entity.PrimaryField] = uuid.NewString()
		generated = true
	}
	for _, col := range entity.Columns() {
		if _, ok := row[col.Name]; !ok && col.Default != nil {
			row[col.Name] = col.Default
		}
	}

	keys := orderedKeys(entity, row)
	returning := fmt.Sprintf("RETURNING %s AS %s", sqlgen.QuoteIdent(entity.PrimaryColumn), sqlgen.QuoteIdent(acl.PrimaryColumn))

	var stmt sq.Sqlizer
	if len(keys) == 0 {
		stmt = sqlgen.Raw(fmt.Sprintf("INSERT INTO %s DEFAULT VALUES %s", sqlgen.QuoteIdent(entity.TableName), returning))
	} else {
		cols := make([]string, len(keys))
		vals := make([]interface{}, len(keys))
		for i, k := range keys {
			col, err := columnName(entity, k)
			if err != nil {
				return nil, err
			}
			cols[i] = sqlgen.QuoteIdent(col)
			vals[i] = row[k]
		}
		stmt = sqlgen.Statement.Insert(sqlgen.QuoteIdent(entity.TableName)).Columns(cols...).Values(vals...).Suffix(returning)
	}

	q, err := sqlgen.Build(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("insert into %s returned %d rows", entity.TableName, len(rows))
	}
	pk := rows[0][acl.PrimaryColumn]

	fields := keys
	if generated {
		fields = fields[:0:0]
		for _, k := range keys {
			if k != entity.PrimaryField {
				fields = append(fields, k)
			}
		}
	}
	m.changes.Add(acl.Change{Entity: entity.Name, Event: acl.EventCreate, PrimaryValue: pk, Fields: fields})
	debug.Debug("row inserted", "entity", entity.Name, "primary", pk)
	return pk, nil
}

// Find returns primary values of visible rows matching where
func (m *Mapper) Find(ctx context.Context, entity *schema.Entity, where ast.Where) ([]any, error) {
	return m.find(ctx, entity, where, nil)
}

// FindLinked is Find restricted to target rows linked to the parent row pk
// through the junction table of the many-has-many relation rel
func (m *Mapper) FindLinked(ctx context.Context, parent *schema.Entity, rel *schema.Relation, pk any, target *schema.Entity, where ast.Where) ([]any, error) {
	jt, selfCol, targetCol, err := builder.JunctionColumns(m.schema, parent, rel)
	if err != nil {
		return nil, err
	}
	linked := sqlgen.Statement.
		Select(sqlgen.QuoteIdent(targetCol)).
		From(sqlgen.QuoteIdent(jt.TableName)).
		Where(sq.Eq{sqlgen.QuoteIdent(selfCol): pk})
	return m.find(ctx, target, where, func(alias string) sq.Sqlizer {
		return sqlgen.In(sqlgen.Column(alias, target.PrimaryColumn), linked)
	})
}

func (m *Mapper) find(ctx context.Context, entity *schema.Entity, where ast.Where, scope func(alias string) sq.Sqlizer) ([]any, error) {
	root := builder.NewRootPath(builder.RootAlias)
	filter, err := m.injector.Inject(entity, where, []string{entity.PrimaryField})
	if err != nil {
		return nil, err
	}
	sb := sqlgen.Statement.
		Select().
		Column(sqlgen.As(sqlgen.Raw(sqlgen.Column(root.Alias(), entity.PrimaryColumn)), acl.PrimaryColumn)).
		From(sqlgen.Table(entity.TableName, root.Alias()))
	sb, err = m.where.Apply(sb, entity, root, filter, builder.WhereOptions{})
	if err != nil {
		return nil, err
	}
	if scope != nil {
		sb = sb.Where(scope(root.Alias()))
	}
	q, err := sqlgen.Build(sb)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row[acl.PrimaryColumn]
	}
	return out, nil
}

// PrimaryValue resolves a unique lookup to the primary value of a visible row
func (m *Mapper) PrimaryValue(ctx context.Context, entity *schema.Entity, by ast.UniqueWhere) (any, error) {
	if err := m.schema.ResolveUnique(entity, by); err != nil {
		return nil, err
	}
	pks, err := m.Find(ctx, entity, by.ToWhere())
	if err != nil {
		return nil, err
	}
	if len(pks) == 0 {
		return nil, &NoResultError{Entity: entity.Name, By: by}
	}
	return pks[0], nil
}

// Exists reports whether a unique lookup matches a visible row
func (m *Mapper) Exists(ctx context.Context, entity *schema.Entity, by ast.UniqueWhere) (any, bool, error) {
	pk, err := m.PrimaryValue(ctx, entity, by)
	if err != nil {
		if _, ok := err.(*NoResultError); ok {
			return nil, false, nil
		}
		return nil, false, err
	}
	return pk, true, nil
}

// SelectColumns reads stored values of fields for one row, nil when the row is missing
func (m *Mapper) SelectColumns(ctx context.Context, entity *schema.Entity, pk any, fields []string) (sqlgen.Row, error) {
	root := builder.NewRootPath(builder.RootAlias)
	sb := sqlgen.Statement.Select().From(sqlgen.Table(entity.TableName, root.Alias()))
	for _, f := range fields {
		col, err := columnName(entity, f)
		if err != nil {
			return nil, err
		}
		sb = sb.Column(sqlgen.As(sqlgen.Raw(sqlgen.Column(root.Alias(), col)), f))
	}
	sb = sb.Where(sq.Eq{sqlgen.Column(root.Alias(), entity.PrimaryColumn): pk})

	q, err := sqlgen.Build(sb)
	if err != nil {
		return nil, err
	}
	rows, err := m.db.Select(ctx, q)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Update writes the values that differ from the stored row. It reports whether
// a statement was issued.
func (m *Mapper) Update(ctx context.Context, entity *schema.Entity, pk any, values map[string]any) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	fields := orderedKeys(entity, values)
	current, err := m.SelectColumns(ctx, entity, pk, fields)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, &NoResultError{Entity: entity.Name, By: ast.UniqueWhere{entity.PrimaryField: pk}}
	}

	changed := make(map[string]any)
	for _, f := range fields {
		if sameValue(current[f], values[f]) {
			continue
		}
		changed[f] = values[f]
	}
	if len(changed) == 0 {
		debug.Debug("update skipped, nothing changed", "entity", entity.Name, "primary", pk)
		return false, nil
	}

	n, err := m.UpdateWhere(ctx, entity, primaryWhere(entity, pk), changed)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("update %s %v: %w", entity.Name, pk, acl.ErrNotFoundOrDenied)
	}
	m.changes.Add(acl.Change{Entity: entity.Name, Event: acl.EventUpdate, PrimaryValue: pk, Fields: orderedKeys(entity, changed)})
	return true, nil
}

// UpdateWhere sets values on rows matching where that the caller may update
func (m *Mapper) UpdateWhere(ctx context.Context, entity *schema.Entity, where ast.Where, values map[string]any) (int64, error) {
	pred, err := m.factory.Create(entity, schema.OperationUpdate, orderedKeys(entity, values))
	if err != nil {
		return 0, err
	}
	if pred.IsNever() {
		return 0, nil
	}
	guard, err := m.guard(entity, ast.AndWhere(where, pred))
	if err != nil {
		return 0, err
	}

	set := make(map[string]interface{}, len(values))
	for f, v := range values {
		col, err := columnName(entity, f)
		if err != nil {
			return 0, err
		}
		set[sqlgen.QuoteIdent(col)] = v
	}
	q, err := sqlgen.Build(sqlgen.Statement.Update(sqlgen.QuoteIdent(entity.TableName)).SetMap(set).Where(guard))
	if err != nil {
		return 0, err
	}
	return m.db.Exec(ctx, q)
}

// Delete removes one row the caller may delete
func (m *Mapper) Delete(ctx context.Context, entity *schema.Entity, pk any) error {
	n, err := m.DeleteWhere(ctx, entity, primaryWhere(entity, pk))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delete %s %v: %w", entity.Name, pk, acl.ErrNotFoundOrDenied)
	}
	m.changes.Deleted(entity.Name, pk)
	return nil
}

// DeleteWhere removes rows matching where that the caller may delete
func (m *Mapper) DeleteWhere(ctx context.Context, entity *schema.Entity, where ast.Where) (int64, error) {
	pred, err := m.factory.Create(entity, schema.OperationDelete, nil)
	if err != nil {
		return 0, err
	}
	if pred.IsNever() {
		return 0, nil
	}
	guard, err := m.guard(entity, ast.AndWhere(where, pred))
	if err != nil {
		return 0, err
	}
	q, err := sqlgen.Build(sqlgen.Statement.Delete(sqlgen.QuoteIdent(entity.TableName)).Where(guard))
	if err != nil {
		return 0, err
	}
	return m.db.Exec(ctx, q)
}

// guard renders primary IN (SELECT primary FROM table WHERE where)
func (m *Mapper) guard(entity *schema.Entity, where ast.Where) (sq.Sqlizer, error) {
	root := builder.NewRootPath(builder.RootAlias)
	sub := sqlgen.Statement.
		Select(sqlgen.Column(root.Alias(), entity.PrimaryColumn)).
		From(sqlgen.Table(entity.TableName, root.Alias()))
	sub, err := m.where.Apply(sub, entity, root, where, builder.WhereOptions{})
	if err != nil {
		return nil, err
	}
	return sqlgen.In(sqlgen.QuoteIdent(entity.PrimaryColumn), sub), nil
}

func primaryWhere(entity *schema.Entity, pk any) ast.Where {
	return ast.Where{Fields: map[string]ast.FieldFilter{entity.PrimaryField: ast.Eq(pk)}}
}

// relationWhere matches rows whose to-one relation points at pk
func relationWhere(relation string, targetPrimary string, pk any) ast.Where {
	return ast.Where{Fields: map[string]ast.FieldFilter{
		relation: ast.Where{Fields: map[string]ast.FieldFilter{targetPrimary: ast.Eq(pk)}},
	}}
}

func sameValue(stored, next any) bool {
	if stored == nil || next == nil {
		return stored == nil && next == nil
	}
	return sqlgen.Key(stored) == sqlgen.Key(next)
}
