package acl

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/builder"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

// ErrNotFoundOrDenied is returned when a write targets a row that does not
// exist or is not visible to the caller
var ErrNotFoundOrDenied = errors.New("not found or denied")

// PrimaryColumn labels the primary key in verification statements
const PrimaryColumn = "__primary"

// Event is the kind of a pending row change
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

func (e Event) operation() schema.Operation {
	switch e {
	case EventCreate:
		return schema.OperationCreate
	case EventUpdate:
		return schema.OperationUpdate
	}
	return schema.OperationDelete
}

// Change is a row-level write awaiting verification
type Change struct {
	Entity       string
	Event        Event
	PrimaryValue any
	Fields       []string
}

// Result lists the changes the caller was not allowed to make
type Result struct {
	Denied []Change
}

// Allowed reports whether every change passed
func (r Result) Allowed() bool {
	return len(r.Denied) == 0
}

// Err returns ErrNotFoundOrDenied describing the first denied change
func (r Result) Err() error {
	if r.Allowed() {
		return nil
	}
	c := r.Denied[0]
	return fmt.Errorf("%s %s %v: %w", c.Event, c.Entity, c.PrimaryValue, ErrNotFoundOrDenied)
}

// PermissionsVerifier evaluates pending changes against ACL predicates in one
// statement per entity
type PermissionsVerifier struct {
	schema  *schema.Schema
	factory *PredicateFactory
	db      sqlgen.Selector
}

// NewPermissionsVerifier creates a verifier reading through db
func NewPermissionsVerifier(s *schema.Schema, factory *PredicateFactory, db sqlgen.Selector) *PermissionsVerifier {
	return &PermissionsVerifier{schema: s, factory: factory, db: db}
}

// Verify checks every change. A row missing from the store counts as denied.
func (v *PermissionsVerifier) Verify(ctx context.Context, changes []Change) (Result, error) {
	byEntity := make(map[string][]Change)
	var names []string
	for _, c := range changes {
		if _, ok := byEntity[c.Entity]; !ok {
			names = append(names, c.Entity)
		}
		byEntity[c.Entity] = append(byEntity[c.Entity], c)
	}
	sort.Strings(names)

	var result Result
	for _, name := range names {
		denied, err := v.verifyEntity(ctx, name, byEntity[name])
		if err != nil {
			return Result{}, err
		}
		result.Denied = append(result.Denied, denied...)
	}
	return result, nil
}

func (v *PermissionsVerifier) verifyEntity(ctx context.Context, name string, changes []Change) ([]Change, error) {
	entity, err := v.schema.Entity(name)
	if err != nil {
		return nil, err
	}
	root := builder.NewRootPath(builder.RootAlias)
	where := builder.NewWhereBuilder(v.schema, builder.NewJoinBuilder(v.schema), builder.NewPathFactory())

	sb := sqlgen.Statement.
		Select().
		Column(sqlgen.As(sqlgen.Raw(sqlgen.Column(root.Alias(), entity.PrimaryColumn)), PrimaryColumn)).
		From(sqlgen.Table(entity.TableName, root.Alias()))

	joins := builder.Joins{}
	seen := make(map[string]bool)
	keys := make([]interface{}, 0, len(changes))
	seenKey := make(map[string]bool)

	for _, c := range changes {
		if k := sqlgen.Key(c.PrimaryValue); !seenKey[k] {
			seenKey[k] = true
			keys = append(keys, c.PrimaryValue)
		}
		for _, field := range changeFields(c) {
			label := checkLabel(c.Event, field)
			if seen[label] {
				continue
			}
			seen[label] = true

			var expr sq.Sqlizer
			if c.Event == EventDelete {
				pred, err := v.factory.Create(entity, schema.OperationDelete, nil)
				if err != nil {
					return nil, err
				}
				expr, joins, err = v.gate(where, entity, root, pred, joins, true)
				if err != nil {
					return nil, err
				}
			} else {
				pred, grant, err := v.factory.FieldPredicate(entity, c.Event.operation(), field)
				if err != nil {
					return nil, err
				}
				expr, joins, err = v.gate(where, entity, root, pred, joins, grant.Granted())
				if err != nil {
					return nil, err
				}
			}
			sb = sb.Column(sqlgen.As(expr, label))
		}
	}

	sb = joins.Apply(sb).Where(sq.Eq{sqlgen.Column(root.Alias(), entity.PrimaryColumn): keys})
	q, err := sqlgen.Build(sb)
	if err != nil {
		return nil, err
	}
	rows, err := v.db.Select(ctx, q)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]sqlgen.Row, len(rows))
	for _, row := range rows {
		byKey[sqlgen.Key(row[PrimaryColumn])] = row
	}

	var denied []Change
	for _, c := range changes {
		row, ok := byKey[sqlgen.Key(c.PrimaryValue)]
		if !ok || !rowAllows(row, c) {
			denied = append(denied, c)
		}
	}
	if len(denied) > 0 {
		debug.Debug("acl verification denied changes", "entity", name, "denied", len(denied), "total", len(changes))
	}
	return denied, nil
}

// gate compiles pred into a non-null boolean column expression
func (v *PermissionsVerifier) gate(where *builder.WhereBuilder, entity *schema.Entity, root builder.Path, pred ast.Where, joins builder.Joins, granted bool) (sq.Sqlizer, builder.Joins, error) {
	if !granted || pred.IsNever() {
		return sqlgen.False, joins, nil
	}
	expr, predJoins, err := where.Build(entity, root, pred, builder.WhereOptions{})
	if err != nil {
		return nil, joins, err
	}
	if expr == nil {
		return sqlgen.True, joins, nil
	}
	return sqlgen.Coalesce(expr), joins.Merge(predJoins), nil
}

func rowAllows(row sqlgen.Row, c Change) bool {
	for _, field := range changeFields(c) {
		if !sqlgen.Truthy(row[checkLabel(c.Event, field)]) {
			return false
		}
	}
	return true
}

func changeFields(c Change) []string {
	if c.Event == EventDelete {
		return []string{""}
	}
	return c.Fields
}

func checkLabel(e Event, field string) string {
	if field == "" {
		return "__" + string(e)
	}
	return "__" + string(e) + "_" + field
}
