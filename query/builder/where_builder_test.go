package builder

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema"
	"github.com/satishbabariya/contentql/schema/schematest"
)

func newWhereBuilder() (*schema.Schema, *WhereBuilder) {
	s := schematest.Blog()
	return s, NewWhereBuilder(s, NewJoinBuilder(s), NewPathFactory())
}

func render(t *testing.T, expr sq.Sqlizer) sqlgen.Query {
	t.Helper()
	require.NotNil(t, expr)
	q, err := sqlgen.Build(expr)
	require.NoError(t, err)
	return q
}

func where(fields map[string]ast.FieldFilter) ast.Where {
	return ast.Where{Fields: fields}
}

func TestWhereBuilderColumns(t *testing.T) {
	s, b := newWhereBuilder()
	post := s.MustEntity("Post")
	root := NewRootPath(RootAlias)

	t.Run("single column", func(t *testing.T) {
		expr, joins, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"title": ast.Eq("Hello"),
		}), WhereOptions{})
		require.NoError(t, err)
		q := render(t, expr)
		assert.Equal(t, `"root_"."title" = $1`, q.SQL)
		assert.Equal(t, []interface{}{"Hello"}, q.Args)
		assert.Equal(t, 0, joins.Len())
	})

	t.Run("column name mapping", func(t *testing.T) {
		expr, _, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"publishedAt": ast.IsNull(false),
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t, `"root_"."published_at" IS NOT NULL`, render(t, expr).SQL)
	})

	t.Run("fields are combined in sorted order", func(t *testing.T) {
		expr, _, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"title": ast.Eq("T"),
			"slug":  ast.Eq("s"),
		}), WhereOptions{})
		require.NoError(t, err)
		q := render(t, expr)
		assert.Equal(t, `("root_"."slug" = $1 AND "root_"."title" = $2)`, q.SQL)
		assert.Equal(t, []interface{}{"s", "T"}, q.Args)
	})

	t.Run("empty filter emits nothing", func(t *testing.T) {
		expr, joins, err := b.Build(post, root, ast.Where{}, WhereOptions{})
		require.NoError(t, err)
		assert.Nil(t, expr)
		assert.Equal(t, 0, joins.Len())

		expr, _, err = b.Build(post, root, where(map[string]ast.FieldFilter{
			"title":  ast.Condition{},
			"author": ast.Where{},
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Nil(t, expr)
	})

	t.Run("not", func(t *testing.T) {
		inner := where(map[string]ast.FieldFilter{"title": ast.Eq("x")})
		expr, _, err := b.Build(post, root, ast.Where{Not: &inner}, WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t, `NOT ("root_"."title" = $1)`, render(t, expr).SQL)
	})

	t.Run("or with an identity branch matches everything", func(t *testing.T) {
		expr, _, err := b.Build(post, root, ast.Where{Or: []ast.Where{
			where(map[string]ast.FieldFilter{"title": ast.Eq("x")}),
			{},
		}}, WhereOptions{})
		require.NoError(t, err)
		assert.Nil(t, expr)
	})

	t.Run("unknown field is a consistency error", func(t *testing.T) {
		_, _, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"nope": ast.Eq(1),
		}), WhereOptions{})
		assert.True(t, schema.IsConsistencyError(err))
	})

	t.Run("condition on relation is a consistency error", func(t *testing.T) {
		_, _, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"author": ast.Eq(1),
		}), WhereOptions{})
		assert.True(t, schema.IsConsistencyError(err))
	})
}

func TestWhereBuilderToOne(t *testing.T) {
	s, b := newWhereBuilder()
	post := s.MustEntity("Post")
	root := NewRootPath(RootAlias)

	t.Run("id-only filter uses the joining column", func(t *testing.T) {
		expr, joins, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"author": where(map[string]ast.FieldFilter{"id": ast.Eq("a1")}),
		}), WhereOptions{})
		require.NoError(t, err)
		q := render(t, expr)
		assert.Equal(t, `"root_"."author_id" = $1`, q.SQL)
		assert.Equal(t, 0, joins.Len())
	})

	t.Run("other fields join the target", func(t *testing.T) {
		expr, joins, err := b.Build(post, root, where(map[string]ast.FieldFilter{
			"author": where(map[string]ast.FieldFilter{"name": ast.Eq("Jo")}),
			"title":  ast.Eq("T"),
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t, `("root_author"."name" = $1 AND "root_"."title" = $2)`, render(t, expr).SQL)
		require.Equal(t, 1, joins.Len())
		assert.Equal(t, `LEFT JOIN "author" AS "root_author" ON "root_author"."id" = "root_"."author_id"`, joins.List()[0].SQL())
	})

	t.Run("joins inside or are registered once", func(t *testing.T) {
		expr, joins, err := b.Build(post, root, ast.Where{Or: []ast.Where{
			where(map[string]ast.FieldFilter{"author": where(map[string]ast.FieldFilter{"name": ast.Eq("a")})}),
			where(map[string]ast.FieldFilter{"author": where(map[string]ast.FieldFilter{"name": ast.Eq("b")})}),
		}}, WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t, `("root_author"."name" = $1 OR "root_author"."name" = $2)`, render(t, expr).SQL)
		assert.Equal(t, 1, joins.Len())
	})

	t.Run("inverse one-has-one joins", func(t *testing.T) {
		author := s.MustEntity("Author")
		expr, joins, err := b.Build(author, root, where(map[string]ast.FieldFilter{
			"profile": where(map[string]ast.FieldFilter{"id": ast.Eq("p1")}),
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t, `"root_profile"."id" = $1`, render(t, expr).SQL)
		require.Equal(t, 1, joins.Len())
		assert.Equal(t, `LEFT JOIN "profile" AS "root_profile" ON "root_profile"."author_id" = "root_"."id"`, joins.List()[0].SQL())
	})
}

func TestWhereBuilderToMany(t *testing.T) {
	t.Run("one-has-many uses a subquery", func(t *testing.T) {
		s, b := newWhereBuilder()
		expr, joins, err := b.Build(s.MustEntity("Author"), NewRootPath(RootAlias), where(map[string]ast.FieldFilter{
			"posts": where(map[string]ast.FieldFilter{"title": ast.Eq("x")}),
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t,
			`"root_"."id" IN (SELECT "root_posts_1"."author_id" FROM "post" AS "root_posts_1" WHERE "root_posts_1"."title" = $1)`,
			render(t, expr).SQL)
		assert.Equal(t, 0, joins.Len())
	})

	t.Run("many-has-many uses a subquery through the junction", func(t *testing.T) {
		s, b := newWhereBuilder()
		expr, joins, err := b.Build(s.MustEntity("Post"), NewRootPath(RootAlias), where(map[string]ast.FieldFilter{
			"categories": where(map[string]ast.FieldFilter{"name": ast.Eq("X")}),
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t,
			`"root_"."id" IN (SELECT "root_categories_1#junction"."post_id" FROM "post_categories" AS "root_categories_1#junction" `+
				`INNER JOIN "category" AS "root_categories_1" ON "root_categories_1"."id" = "root_categories_1#junction"."category_id" `+
				`WHERE "root_categories_1"."name" = $1)`,
			render(t, expr).SQL)
		assert.Equal(t, 0, joins.Len(), "parent rows must not be duplicated")
	})

	t.Run("many-has-many by id skips the target table", func(t *testing.T) {
		s, b := newWhereBuilder()
		expr, _, err := b.Build(s.MustEntity("Post"), NewRootPath(RootAlias), where(map[string]ast.FieldFilter{
			"categories": where(map[string]ast.FieldFilter{"id": ast.In("c1", "c2")}),
		}), WhereOptions{})
		require.NoError(t, err)
		q := render(t, expr)
		assert.Equal(t,
			`"root_"."id" IN (SELECT "root_categories_1#junction"."post_id" FROM "post_categories" AS "root_categories_1#junction" WHERE "root_categories_1#junction"."category_id" IN ($1,$2))`,
			q.SQL)
		assert.Equal(t, []interface{}{"c1", "c2"}, q.Args)
	})

	t.Run("inverse many-has-many swaps junction columns", func(t *testing.T) {
		s, b := newWhereBuilder()
		expr, _, err := b.Build(s.MustEntity("Category"), NewRootPath(RootAlias), where(map[string]ast.FieldFilter{
			"posts": where(map[string]ast.FieldFilter{"id": ast.Eq("p1")}),
		}), WhereOptions{})
		require.NoError(t, err)
		assert.Equal(t,
			`"root_"."id" IN (SELECT "root_posts_1#junction"."category_id" FROM "post_categories" AS "root_posts_1#junction" WHERE "root_posts_1#junction"."post_id" = $1)`,
			render(t, expr).SQL)
	})

	t.Run("allowManyJoin joins directly", func(t *testing.T) {
		s, b := newWhereBuilder()
		expr, joins, err := b.Build(s.MustEntity("Post"), NewRootPath(RootAlias), where(map[string]ast.FieldFilter{
			"categories": where(map[string]ast.FieldFilter{"name": ast.Eq("X")}),
		}), WhereOptions{AllowManyJoin: true})
		require.NoError(t, err)
		assert.Equal(t, `"root_categories"."name" = $1`, render(t, expr).SQL)
		require.Equal(t, 2, joins.Len())
		assert.Equal(t, `LEFT JOIN "post_categories" AS "root_categories#junction" ON "root_categories#junction"."post_id" = "root_"."id"`, joins.List()[0].SQL())
		assert.Equal(t, `LEFT JOIN "category" AS "root_categories" ON "root_categories"."id" = "root_categories#junction"."category_id"`, joins.List()[1].SQL())
	})

	t.Run("nested subqueries get distinct aliases", func(t *testing.T) {
		s, b := newWhereBuilder()
		expr, _, err := b.Build(s.MustEntity("Author"), NewRootPath(RootAlias), where(map[string]ast.FieldFilter{
			"posts": where(map[string]ast.FieldFilter{
				"categories": where(map[string]ast.FieldFilter{"name": ast.Eq("X")}),
			}),
		}), WhereOptions{})
		require.NoError(t, err)
		q := render(t, expr)
		assert.Contains(t, q.SQL, `FROM "post" AS "root_posts_1"`)
		assert.Contains(t, q.SQL, `"root_posts_1"."id" IN (SELECT "root_posts_1_categories_2#junction"."post_id"`)
	})
}

func TestWhereBuilderApply(t *testing.T) {
	s, b := newWhereBuilder()
	post := s.MustEntity("Post")
	root := NewRootPath(RootAlias)

	sb := sqlgen.Statement.Select(sqlgen.Column(root.Alias(), "id")).From(sqlgen.Table(post.TableName, root.Alias()))
	sb, err := b.Apply(sb, post, root, where(map[string]ast.FieldFilter{
		"author": where(map[string]ast.FieldFilter{"name": ast.Eq("Jo")}),
	}), WhereOptions{})
	require.NoError(t, err)

	q := render(t, sb)
	assert.Equal(t,
		`SELECT "root_"."id" FROM "post" AS "root_" LEFT JOIN "author" AS "root_author" ON "root_author"."id" = "root_"."author_id" WHERE "root_author"."name" = $1`,
		q.SQL)
}
