package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/executor"
	"github.com/satishbabariya/contentql/schema"
)

// MutationError is a user facing failure of a mutation
type MutationError struct {
	Path    string    `json:"path"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Result is the outcome of one mutation node
type Result struct {
	OK       bool            `json:"ok"`
	Errors   []MutationError `json:"errors,omitempty"`
	Node     executor.Object `json:"node,omitempty"`
	Affected int64           `json:"affected,omitempty"`
}

// Executor runs mutation nodes. The caller owns the transaction and must roll
// it back unless the result is OK.
type Executor struct {
	schema   *schema.Schema
	db       DB
	factory  *acl.PredicateFactory
	selects  *executor.SelectBuilder
	verifier *acl.PermissionsVerifier
}

// NewExecutor creates an executor writing through db
func NewExecutor(s *schema.Schema, db DB, factory *acl.PredicateFactory) *Executor {
	return &Executor{
		schema:   s,
		db:       db,
		factory:  factory,
		selects:  executor.NewSelectBuilder(s, db, factory),
		verifier: acl.NewPermissionsVerifier(s, factory, db),
	}
}

// Execute performs node with its nested writes, verifies the written rows
// against the create and update predicates and reads back the selection.
// Input errors are reported in the result; other errors are returned.
func (e *Executor) Execute(ctx context.Context, node *ast.MutationNode) (Result, error) {
	entity, err := e.schema.Entity(node.Entity)
	if err != nil {
		return Result{}, err
	}
	changes := NewChangeSet()
	mapper := NewMapper(e.schema, e.db, e.factory, changes)
	w := &writer{
		schema:    e.schema,
		mapper:    mapper,
		junctions: NewJunctionTableManager(e.schema, e.db, e.factory),
	}

	debug.Debug("executing mutation", "kind", string(node.Kind), "entity", entity.Name)

	var (
		result Result
		pk     any
	)
	switch node.Kind {
	case ast.MutationCreate:
		pk, err = w.create(ctx, entity, node.Data, nil, Path{})

	case ast.MutationUpdate:
		if len(node.By) == 0 && node.Filter != nil {
			result.Affected, err = e.updateMany(ctx, mapper, entity, node)
			break
		}
		if pk, err = w.primary(ctx, entity, node.By, Path{}); err == nil {
			err = w.update(ctx, entity, pk, node.Data, nil, Path{})
		}

	case ast.MutationUpsert:
		pk, err = w.upsert(ctx, entity, node.By, node.Update, node.Create, nil, Path{})

	case ast.MutationDelete:
		if len(node.By) == 0 && node.Filter != nil {
			result.Affected, err = mapper.DeleteWhere(ctx, entity, *node.Filter)
			break
		}
		if pk, err = w.primary(ctx, entity, node.By, Path{}); err != nil {
			break
		}
		if node.Selection != nil {
			if result.Node, err = e.selection(ctx, entity, node.Selection, pk); err != nil {
				return Result{}, err
			}
		}
		err = translate(Path{}, mapper.Delete(ctx, entity, pk))

	default:
		return Result{}, fmt.Errorf("unknown mutation kind %q", node.Kind)
	}
	if err != nil {
		return failure(err)
	}

	verdict, err := e.verifier.Verify(ctx, changes.Changes())
	if err != nil {
		return Result{}, err
	}
	if !verdict.Allowed() {
		debug.Warn("mutation denied by verifier", "entity", entity.Name, "denied", len(verdict.Denied))
		return failure(translate(Path{}, verdict.Err()))
	}

	if node.Kind != ast.MutationDelete && node.Selection != nil && pk != nil {
		if result.Node, err = e.selection(ctx, entity, node.Selection, pk); err != nil {
			return Result{}, err
		}
	}
	result.OK = true
	return result, nil
}

func (e *Executor) updateMany(ctx context.Context, mapper *Mapper, entity *schema.Entity, node *ast.MutationNode) (int64, error) {
	if len(node.Data.Relations) > 0 {
		return 0, inputError(Path{}, CodeUnsupportedOperation, "nested writes require a unique lookup")
	}
	if _, err := inputFields(entity, node.Data); err != nil {
		return 0, err
	}
	return mapper.UpdateWhere(ctx, entity, *node.Filter, node.Data.Columns)
}

func (e *Executor) selection(ctx context.Context, entity *schema.Entity, sel *ast.QueryNode, pk any) (executor.Object, error) {
	node := *sel
	node.Args = ast.Args{By: ast.UniqueWhere{entity.PrimaryField: pk}}
	return e.selects.Get(ctx, entity.Name, &node)
}

// failure reports input errors in the result and returns everything else
func failure(err error) (Result, error) {
	var ie *InputError
	if errors.As(err, &ie) {
		return Result{Errors: []MutationError{{Path: ie.Path.String(), Code: ie.Code, Message: ie.Message}}}, nil
	}
	return Result{}, err
}
