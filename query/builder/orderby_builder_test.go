package builder

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/sqlgen"
	"github.com/satishbabariya/contentql/schema/schematest"
)

func TestOrderByBuilder(t *testing.T) {
	s := schematest.Blog()
	b := NewOrderByBuilder(s, NewJoinBuilder(s))
	root := NewRootPath(RootAlias)

	t.Run("columns and to-one relations", func(t *testing.T) {
		exprs, joins, err := b.Build(s.MustEntity("Post"), root, []ast.OrderBy{
			{Path: []string{"title"}, Direction: ast.Desc},
			{Path: []string{"author", "name"}, Direction: ast.Asc},
			{Path: []string{"publishedAt"}, Direction: ast.DescNullsLast},
		}, false)
		require.NoError(t, err)
		assert.Equal(t, []string{
			`"root_"."title" DESC`,
			`"root_author"."name" ASC`,
			`"root_"."published_at" DESC NULLS LAST`,
		}, exprs)
		assert.Equal(t, 1, joins.Len())
	})

	t.Run("to-many requires allowManyJoin", func(t *testing.T) {
		orderBy := []ast.OrderBy{{Path: []string{"posts", "title"}, Direction: ast.Asc}}

		_, _, err := b.Build(s.MustEntity("Author"), root, orderBy, false)
		assert.ErrorIs(t, err, ErrInvalidOrderBy)

		exprs, joins, err := b.Build(s.MustEntity("Author"), root, orderBy, true)
		require.NoError(t, err)
		assert.Equal(t, []string{`"root_posts"."title" ASC`}, exprs)
		assert.Equal(t, 1, joins.Len())
	})

	t.Run("last segment must be a column", func(t *testing.T) {
		_, _, err := b.Build(s.MustEntity("Post"), root, []ast.OrderBy{{Path: []string{"author"}}}, false)
		assert.Error(t, err)
	})

	t.Run("unknown direction", func(t *testing.T) {
		_, _, err := b.Build(s.MustEntity("Post"), root, []ast.OrderBy{{Path: []string{"title"}, Direction: "sideways"}}, false)
		assert.ErrorIs(t, err, ErrInvalidOrderBy)
	})
}

func TestLimitByGroupWrapper(t *testing.T) {
	inner := sqlgen.Statement.Select().
		Column(sqlgen.As(sqlgen.Raw(sqlgen.Column("root_", "author_id")), GroupingKey)).
		Column(sqlgen.As(sqlgen.Raw(sqlgen.Column("root_", "id")), "id")).
		From(sqlgen.Table("post", "root_")).
		Where(sq.Eq{sqlgen.Column("root_", "author_id"): []interface{}{"a", "b"}})

	t.Run("offset and limit", func(t *testing.T) {
		wrapped := LimitByGroupWrapper{}.Wrap(inner, sqlgen.Column("root_", "author_id"),
			[]string{`"root_"."title" ASC`}, []string{GroupingKey, "id"}, ast.IntPtr(1), ast.IntPtr(2))

		q, err := sqlgen.Build(wrapped)
		require.NoError(t, err)
		assert.Equal(t,
			`WITH "data" AS (SELECT ("root_"."author_id") AS "__grouping_key", ("root_"."id") AS "id", `+
				`(ROW_NUMBER() OVER (PARTITION BY "root_"."author_id" ORDER BY "root_"."title" ASC)) AS "__rownumber" `+
				`FROM "post" AS "root_" WHERE "root_"."author_id" IN ($1,$2)) `+
				`SELECT "data"."__grouping_key", "data"."id" FROM "data" WHERE "data"."__rownumber" > $3 AND "data"."__rownumber" <= $4 `+
				`ORDER BY "data"."__rownumber" ASC`,
			q.SQL)
		assert.Equal(t, []interface{}{"a", "b", 1, 3}, q.Args)
	})

	t.Run("limit only", func(t *testing.T) {
		wrapped := LimitByGroupWrapper{}.Wrap(inner, sqlgen.Column("root_", "author_id"),
			[]string{`"root_"."id" ASC`}, []string{GroupingKey, "id"}, nil, ast.IntPtr(5))
		q, err := sqlgen.Build(wrapped)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{"a", "b", 0, 5}, q.Args)
	})

	t.Run("no window returns inner", func(t *testing.T) {
		wrapped := LimitByGroupWrapper{}.Wrap(inner, "x", nil, nil, nil, nil)
		q, err := sqlgen.Build(wrapped)
		require.NoError(t, err)
		assert.NotContains(t, q.SQL, "ROW_NUMBER")
	})
}
