package executor

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/builder"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
)

const (
	relationPrefix = "__rel_"
	gatePrefix     = "__gate_"

	// ChunkSize bounds the number of parent keys bound into one grouped select
	ChunkSize = 1000
)

// SelectBuilder compiles query nodes into one select per entity level and
// resolves relations with grouped follow-up selects
type SelectBuilder struct {
	schema   *schema.Schema
	db       sqlgen.Selector
	factory  *acl.PredicateFactory
	injector *acl.PredicatesInjector
	where    *builder.WhereBuilder
	orderBy  *builder.OrderByBuilder
	meta     *MetaHandler
	hydrator Hydrator
}

// NewSelectBuilder creates a select builder for one request
func NewSelectBuilder(s *schema.Schema, db sqlgen.Selector, factory *acl.PredicateFactory) *SelectBuilder {
	joins := builder.NewJoinBuilder(s)
	where := builder.NewWhereBuilder(s, joins, builder.NewPathFactory())
	return &SelectBuilder{
		schema:   s,
		db:       db,
		factory:  factory,
		injector: acl.NewPredicatesInjector(s, factory),
		where:    where,
		orderBy:  builder.NewOrderByBuilder(s, joins),
		meta:     NewMetaHandler(factory, where),
	}
}

// plan describes how rows of one select become objects
type plan struct {
	entity    *schema.Entity
	node      *ast.QueryNode
	columns   []string
	relations []*relationPlan
	meta      *metaPlan
}

// relationPlan is a relation subtree resolved after its parents are fetched
type relationPlan struct {
	node     *ast.QueryNode
	relation *schema.Relation
	target   *schema.Entity
	gate     string
	reduced  bool
}

func (rp *relationPlan) list() bool {
	return rp.relation.Kind.IsToMany() && !rp.reduced
}

// grouping restricts a select to the children of a set of parents
type grouping struct {
	expr     string
	joins    builder.Joins
	keys     []interface{}
	relation *schema.Relation
	list     bool
}

// List returns every visible row of entity matching the node arguments
func (b *SelectBuilder) List(ctx context.Context, entityName string, node *ast.QueryNode) ([]Object, error) {
	entity, err := b.schema.Entity(entityName)
	if err != nil {
		return nil, err
	}
	var filter ast.Where
	if node.Args.Filter != nil {
		filter = *node.Args.Filter
	}
	_, objects, err := b.fetch(ctx, entity, node, filter, nil)
	if err != nil {
		return nil, err
	}
	if objects == nil {
		objects = []Object{}
	}
	return objects, nil
}

// Get returns the row identified by node.Args.By, or nil when it is missing or hidden
func (b *SelectBuilder) Get(ctx context.Context, entityName string, node *ast.QueryNode) (Object, error) {
	entity, err := b.schema.Entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := b.schema.ResolveUnique(entity, node.Args.By); err != nil {
		return nil, err
	}
	unique := *node
	unique.Args = ast.Args{By: node.Args.By}
	_, objects, err := b.fetch(ctx, entity, &unique, node.Args.By.ToWhere(), nil)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	return objects[0], nil
}

// Explain returns the root select of a list node without running it
func (b *SelectBuilder) Explain(entityName string, node *ast.QueryNode) (sqlgen.Query, error) {
	entity, err := b.schema.Entity(entityName)
	if err != nil {
		return sqlgen.Query{}, err
	}
	filter := node.Args.By.ToWhere()
	if node.Args.Filter != nil {
		filter = ast.AndWhere(filter, *node.Args.Filter)
	}
	stmt, _, err := b.statement(entity, node, filter, nil)
	if err != nil {
		return sqlgen.Query{}, err
	}
	return sqlgen.Build(stmt)
}

func (b *SelectBuilder) fetch(ctx context.Context, entity *schema.Entity, node *ast.QueryNode, filter ast.Where, g *grouping) ([]sqlgen.Row, []Object, error) {
	stmt, p, err := b.statement(entity, node, filter, g)
	if err != nil {
		return nil, nil, err
	}
	q, err := sqlgen.Build(stmt)
	if err != nil {
		return nil, nil, err
	}
	rows, err := b.db.Select(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	objects := b.hydrator.Objects(p, rows)
	if err := b.resolve(ctx, p, rows, objects); err != nil {
		return nil, nil, err
	}
	return rows, objects, nil
}

// statement assembles the select of one entity level
func (b *SelectBuilder) statement(entity *schema.Entity, node *ast.QueryNode, filter ast.Where, g *grouping) (sq.Sqlizer, *plan, error) {
	if err := validateWindow(node.Args); err != nil {
		return nil, nil, err
	}
	root := builder.NewRootPath(builder.RootAlias)
	p := &plan{entity: entity, node: node}

	rowFilter, err := b.injector.Inject(entity, filter, requestedFields(entity, node))
	if err != nil {
		return nil, nil, err
	}
	rowPredicates := b.injector.RowPredicates(entity, filter)
	implied := func(name string) bool {
		return len(rowPredicates) == 1 && rowPredicates[0] == name
	}

	sb := sqlgen.Statement.Select().From(sqlgen.Table(entity.TableName, root.Alias()))
	joins := builder.Joins{}
	selected := make(map[string]bool)
	add := func(expr sq.Sqlizer, alias string) {
		if selected[alias] {
			return
		}
		selected[alias] = true
		sb = sb.Column(sqlgen.As(expr, alias))
		p.columns = append(p.columns, alias)
	}

	if g != nil {
		add(sqlgen.Raw(g.expr), builder.GroupingKey)
		joins = joins.Merge(g.joins)
	}

	for _, name := range append([]string{entity.PrimaryField}, node.FieldNames()...) {
		col, err := entity.Column(name)
		if err != nil {
			return nil, nil, err
		}
		ref := sqlgen.Column(root.Alias(), col.ColumnName)
		pred, grant, err := b.factory.FieldPredicate(entity, schema.OperationRead, name)
		if err != nil {
			return nil, nil, err
		}
		// the primary key is never redacted; hydration joins on it
		if name == entity.PrimaryField || !grant.Granted() || grant.Unconditional() || implied(grant.Name) {
			add(sqlgen.Raw(ref), name)
			continue
		}
		expr, predJoins, err := b.where.Build(entity, root, pred, builder.WhereOptions{})
		if err != nil {
			return nil, nil, err
		}
		if expr == nil {
			add(sqlgen.Raw(ref), name)
			continue
		}
		joins = joins.Merge(predJoins)
		add(sqlgen.CaseWhen(expr, ref), name)
	}

	for _, f := range node.Fields {
		sub, ok := f.(*ast.QueryNode)
		if !ok {
			continue
		}
		if sub.Name == ast.MetaField {
			mp, columns, metaJoins, err := b.meta.Plan(entity, root, sub, implied)
			if err != nil {
				return nil, nil, err
			}
			p.meta = mp
			joins = joins.Merge(metaJoins)
			for _, c := range columns {
				add(c.expr, c.alias)
			}
			continue
		}

		rp, err := b.relationPlan(entity, sub)
		if err != nil {
			return nil, nil, err
		}
		if rp.relation.Kind == schema.ManyHasOne || rp.relation.Kind == schema.OneHasOneOwning {
			add(sqlgen.Raw(sqlgen.Column(root.Alias(), rp.relation.JoiningColumn.ColumnName)), relationPrefix+rp.relation.Name)
		}

		pred, grant, err := b.factory.FieldPredicate(entity, schema.OperationRead, rp.relation.Name)
		if err != nil {
			return nil, nil, err
		}
		if grant.Granted() && !grant.Unconditional() && !implied(grant.Name) {
			expr, predJoins, err := b.where.Build(entity, root, pred, builder.WhereOptions{})
			if err != nil {
				return nil, nil, err
			}
			if expr != nil {
				rp.gate = gatePrefix + sub.NodeAlias()
				joins = joins.Merge(predJoins)
				add(sqlgen.Coalesce(expr), rp.gate)
			}
		}
		p.relations = append(p.relations, rp)
	}

	whereExpr, whereJoins, err := b.where.Build(entity, root, rowFilter, builder.WhereOptions{})
	if err != nil {
		return nil, nil, err
	}
	joins = joins.Merge(whereJoins)
	if whereExpr != nil {
		sb = sb.Where(whereExpr)
	}

	if g == nil {
		exprs, orderJoins, err := b.orderBy.Build(entity, root, node.Args.OrderBy, false)
		if err != nil {
			return nil, nil, err
		}
		sb = joins.Merge(orderJoins).Apply(sb).OrderBy(append(exprs, builder.PrimaryOrder(entity, root))...)
		if node.Args.Limit != nil {
			sb = sb.Limit(uint64(*node.Args.Limit))
		}
		if node.Args.Offset != nil && *node.Args.Offset > 0 {
			sb = sb.Offset(uint64(*node.Args.Offset))
		}
		return sb, p, nil
	}

	orderBy := node.Args.OrderBy
	if len(orderBy) == 0 && g.relation != nil {
		orderBy = g.relation.OrderBy
	}
	exprs, orderJoins, err := b.orderBy.Build(entity, root, orderBy, true)
	if err != nil {
		return nil, nil, err
	}
	exprs = append(exprs, builder.PrimaryOrder(entity, root))
	sb = joins.Merge(orderJoins).Apply(sb).Where(sq.Eq{g.expr: g.keys})

	if g.list && node.Args.HasWindow() {
		return builder.LimitByGroupWrapper{}.Wrap(sb, g.expr, exprs, p.columns, node.Args.Offset, node.Args.Limit), p, nil
	}
	return sb.OrderBy(exprs...), p, nil
}

func (b *SelectBuilder) relationPlan(entity *schema.Entity, node *ast.QueryNode) (*relationPlan, error) {
	name := node.Name
	if node.Reduction != nil {
		name = node.Reduction.Relation
	}
	rel, err := entity.Relation(name)
	if err != nil {
		return nil, err
	}
	target, err := b.schema.Entity(rel.Target)
	if err != nil {
		return nil, err
	}
	rp := &relationPlan{node: node, relation: rel, target: target, reduced: node.Reduction != nil}
	if rp.reduced {
		if err := b.schema.ResolveReduction(entity, rel, node.Reduction.By); err != nil {
			var ue *schema.UniqueError
			if errors.As(err, &ue) {
				return nil, &schema.ConsistencyError{Entity: entity.Name, Field: node.Name, Message: err.Error()}
			}
			return nil, err
		}
	}
	return rp, nil
}

// resolve fetches every relation subtree of p and attaches it to objects.
// Sibling relations are fetched concurrently; the connection serialises them.
func (b *SelectBuilder) resolve(ctx context.Context, p *plan, rows []sqlgen.Row, objects []Object) error {
	if len(p.relations) == 0 || len(rows) == 0 {
		return nil
	}

	values := make([][]any, len(p.relations))
	eg, ctx := errgroup.WithContext(ctx)
	for i, rp := range p.relations {
		i, rp := i, rp
		eg.Go(func() error {
			v, err := b.relation(ctx, p.entity, rp, rows)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", p.entity.Name, rp.node.NodeAlias(), err)
			}
			values[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, rp := range p.relations {
		alias := rp.node.NodeAlias()
		for j, obj := range objects {
			obj[alias] = values[i][j]
		}
	}
	return nil
}

// relation fetches the children of every parent row with one grouped select
// per chunk of parent keys and returns the value of the relation for each row
func (b *SelectBuilder) relation(ctx context.Context, parent *schema.Entity, rp *relationPlan, rows []sqlgen.Row) ([]any, error) {
	root := builder.NewRootPath(builder.RootAlias)
	out := make([]any, len(rows))
	if rp.list() {
		for i := range out {
			out[i] = []Object{}
		}
	}

	g := grouping{relation: rp.relation, list: rp.list()}
	parentKey := func(row sqlgen.Row) any { return row[parent.PrimaryField] }

	switch rp.relation.Kind {
	case schema.ManyHasOne, schema.OneHasOneOwning:
		g.expr = sqlgen.Column(root.Alias(), rp.target.PrimaryColumn)
		parentKey = func(row sqlgen.Row) any { return row[relationPrefix+rp.relation.Name] }

	case schema.OneHasMany, schema.OneHasOneInverse:
		fk, err := b.schema.TargetJoiningColumn(parent, rp.relation)
		if err != nil {
			return nil, err
		}
		g.expr = sqlgen.Column(root.Alias(), fk)

	case schema.ManyHasManyOwning, schema.ManyHasManyInverse:
		jt, selfCol, targetCol, err := builder.JunctionColumns(b.schema, parent, rp.relation)
		if err != nil {
			return nil, err
		}
		junction := builder.JunctionAlias(root)
		g.expr = sqlgen.Column(junction, selfCol)
		g.joins = g.joins.Add(builder.Join{
			Type:      builder.InnerJoin,
			Table:     jt.TableName,
			Alias:     junction,
			Condition: sqlgen.Column(junction, targetCol) + " = " + sqlgen.Column(root.Alias(), rp.target.PrimaryColumn),
		})

	default:
		return nil, &schema.ConsistencyError{Entity: parent.Name, Field: rp.relation.Name, Message: "unsupported relation kind"}
	}

	visible := func(row sqlgen.Row) bool {
		return rp.gate == "" || sqlgen.Truthy(row[rp.gate])
	}

	var keys []interface{}
	seen := make(map[string]bool)
	for _, row := range rows {
		k := parentKey(row)
		if k == nil || !visible(row) {
			continue
		}
		if s := sqlgen.Key(k); !seen[s] {
			seen[s] = true
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return out, nil
	}

	var filter ast.Where
	switch {
	case rp.reduced:
		filter = rp.node.Reduction.By.ToWhere()
	case rp.list() && rp.node.Args.Filter != nil:
		filter = *rp.node.Args.Filter
	}

	groups, err := b.grouped(ctx, rp.target, rp.node, filter, g, keys)
	if err != nil {
		return nil, err
	}

	for i, row := range rows {
		k := parentKey(row)
		if k == nil || !visible(row) {
			continue
		}
		group := groups[sqlgen.Key(k)]
		if rp.list() {
			if group != nil {
				out[i] = group
			}
			continue
		}
		if len(group) > 0 {
			out[i] = group[0]
		}
	}
	return out, nil
}

// grouped selects the children of keys, ChunkSize keys per statement
func (b *SelectBuilder) grouped(ctx context.Context, target *schema.Entity, node *ast.QueryNode, filter ast.Where, g grouping, keys []interface{}) (map[string][]Object, error) {
	groups := make(map[string][]Object)
	for start := 0; start < len(keys); start += ChunkSize {
		chunk := g
		chunk.keys = keys[start:min(start+ChunkSize, len(keys))]

		rows, objects, err := b.fetch(ctx, target, node, filter, &chunk)
		if err != nil {
			return nil, err
		}
		for key, group := range b.hydrator.Group(rows, objects) {
			groups[key] = append(groups[key], group...)
		}
	}
	debug.Debug("grouped select", "entity", target.Name, "relation", g.relation.Name, "parents", len(keys), "groups", len(groups))
	return groups, nil
}

// requestedFields lists every field the node reads, primary included
func requestedFields(entity *schema.Entity, node *ast.QueryNode) []string {
	fields := append([]string{entity.PrimaryField}, node.FieldNames()...)
	for _, f := range node.Fields {
		sub, ok := f.(*ast.QueryNode)
		if !ok || sub.Name == ast.MetaField {
			continue
		}
		if sub.Reduction != nil {
			fields = append(fields, sub.Reduction.Relation)
			continue
		}
		fields = append(fields, sub.Name)
	}
	return fields
}

func validateWindow(args ast.Args) error {
	if args.Limit != nil && *args.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %d", *args.Limit)
	}
	if args.Offset != nil && *args.Offset < 0 {
		return fmt.Errorf("offset must not be negative: %d", *args.Offset)
	}
	return nil
}
