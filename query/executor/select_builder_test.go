package executor

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
	"github.com/satishbabariya/contentql/schema/schematest"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func openSelect(t *testing.T, perms schema.Permissions, vars acl.Variables) (*SelectBuilder, *Conn, sqlmock.Sqlmock) {
	t.Helper()
	s := schematest.Blog()
	db, mock := newMock(t)
	conn := NewConn(db)
	if perms == nil {
		perms = schema.AllowAll(s)
	}
	factory := acl.NewPredicateFactory(perms, acl.NewVariableInjector(vars))
	return NewSelectBuilder(s, conn, factory), conn, mock
}

func fields(names ...string) []ast.Node {
	out := make([]ast.Node, len(names))
	for i, n := range names {
		out[i] = &ast.FieldNode{Name: n}
	}
	return out
}

func TestSelectBuilderGroupedRelations(t *testing.T) {
	ctx := context.Background()

	t.Run("one-has-many issues a single grouped statement", func(t *testing.T) {
		sb, conn, mock := openSelect(t, nil, nil)

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id" FROM "post" AS "root_" ORDER BY "root_"."id" ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1").AddRow("p2").AddRow("p3"))
		mock.ExpectQuery(`SELECT ("root_"."post_id") AS "__grouping_key", ("root_"."id") AS "id" FROM "post_locale" AS "root_" `+
			`WHERE "root_"."post_id" IN ($1,$2,$3) ORDER BY "root_"."id" ASC`).
			WithArgs("p1", "p2", "p3").
			WillReturnRows(sqlmock.NewRows([]string{"__grouping_key", "id"}).
				AddRow("p1", "l1").AddRow("p1", "l2").AddRow("p3", "l3"))

		posts, err := sb.List(ctx, "Post", &ast.QueryNode{
			Name: "listPost",
			Fields: []ast.Node{
				&ast.FieldNode{Name: "id"},
				&ast.QueryNode{Name: "locales", Fields: fields("id")},
			},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, int64(2), conn.Statements())

		require.Len(t, posts, 3)
		assert.Equal(t, []Object{{"id": "l1"}, {"id": "l2"}}, posts[0]["locales"])
		assert.Equal(t, []Object{}, posts[1]["locales"])
		assert.Equal(t, []Object{{"id": "l3"}}, posts[2]["locales"])
	})

	t.Run("nested pagination is windowed per parent", func(t *testing.T) {
		sb, conn, mock := openSelect(t, nil, nil)

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id" FROM "author" AS "root_" ORDER BY "root_"."id" ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
		mock.ExpectQuery(`WITH "data" AS (SELECT ("root_"."author_id") AS "__grouping_key", ("root_"."id") AS "id", `+
			`(ROW_NUMBER() OVER (PARTITION BY "root_"."author_id" ORDER BY "root_"."id" ASC)) AS "__rownumber" `+
			`FROM "post" AS "root_" WHERE "root_"."author_id" IN ($1,$2)) `+
			`SELECT "data"."__grouping_key", "data"."id" FROM "data" WHERE "data"."__rownumber" > $3 AND "data"."__rownumber" <= $4 `+
			`ORDER BY "data"."__rownumber" ASC`).
			WithArgs("a", "b", 1, 3).
			WillReturnRows(sqlmock.NewRows([]string{"__grouping_key", "id"}).AddRow("a", "p2").AddRow("a", "p3"))

		authors, err := sb.List(ctx, "Author", &ast.QueryNode{
			Name: "listAuthor",
			Fields: []ast.Node{
				&ast.FieldNode{Name: "id"},
				&ast.QueryNode{Name: "posts", Fields: fields("id"), Args: ast.Args{Offset: ast.IntPtr(1), Limit: ast.IntPtr(2)}},
			},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, int64(2), conn.Statements())

		assert.Equal(t, []Object{{"id": "p2"}, {"id": "p3"}}, authors[0]["posts"])
		assert.Equal(t, []Object{}, authors[1]["posts"])
	})

	t.Run("many-has-one selects the foreign key", func(t *testing.T) {
		sb, _, mock := openSelect(t, nil, nil)

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id", ("root_"."author_id") AS "__rel_author" FROM "post" AS "root_" ORDER BY "root_"."id" ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "__rel_author"}).AddRow("p1", "a1").AddRow("p2", nil).AddRow("p3", "a1"))
		mock.ExpectQuery(`SELECT ("root_"."id") AS "__grouping_key", ("root_"."id") AS "id", ("root_"."name") AS "name" ` +
			`FROM "author" AS "root_" WHERE "root_"."id" IN ($1) ORDER BY "root_"."id" ASC`).
			WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"__grouping_key", "id", "name"}).AddRow("a1", "a1", "Jane"))

		posts, err := sb.List(ctx, "Post", &ast.QueryNode{
			Name: "listPost",
			Fields: []ast.Node{
				&ast.FieldNode{Name: "id"},
				&ast.QueryNode{Name: "author", Fields: fields("name")},
			},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		assert.Equal(t, Object{"name": "Jane"}, posts[0]["author"])
		assert.Nil(t, posts[1]["author"])
		assert.Equal(t, Object{"name": "Jane"}, posts[2]["author"])
	})

	t.Run("many-has-many goes through the junction", func(t *testing.T) {
		sb, _, mock := openSelect(t, nil, nil)

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id" FROM "post" AS "root_" ORDER BY "root_"."id" ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1").AddRow("p2"))
		mock.ExpectQuery(`SELECT ("root_#junction"."post_id") AS "__grouping_key", ("root_"."id") AS "id", ("root_"."name") AS "name" `+
			`FROM "category" AS "root_" INNER JOIN "post_categories" AS "root_#junction" ON "root_#junction"."category_id" = "root_"."id" `+
			`WHERE "root_#junction"."post_id" IN ($1,$2) ORDER BY "root_"."id" ASC`).
			WithArgs("p1", "p2").
			WillReturnRows(sqlmock.NewRows([]string{"__grouping_key", "id", "name"}).
				AddRow("p1", "c1", "Go").AddRow("p2", "c1", "Go").AddRow("p2", "c2", "SQL"))

		posts, err := sb.List(ctx, "Post", &ast.QueryNode{
			Name: "listPost",
			Fields: []ast.Node{
				&ast.FieldNode{Name: "id"},
				&ast.QueryNode{Name: "categories", Fields: fields("name")},
			},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		assert.Equal(t, []Object{{"name": "Go"}}, posts[0]["categories"])
		assert.Equal(t, []Object{{"name": "Go"}, {"name": "SQL"}}, posts[1]["categories"])
	})

	t.Run("reduction yields a single object", func(t *testing.T) {
		sb, _, mock := openSelect(t, nil, nil)

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id" FROM "post" AS "root_" ORDER BY "root_"."id" ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1").AddRow("p2"))
		mock.ExpectQuery(`SELECT ("root_"."post_id") AS "__grouping_key", ("root_"."id") AS "id", ("root_"."title") AS "title" `+
			`FROM "post_locale" AS "root_" WHERE "root_"."locale" = $1 AND "root_"."post_id" IN ($2,$3) ORDER BY "root_"."id" ASC`).
			WithArgs("cs", "p1", "p2").
			WillReturnRows(sqlmock.NewRows([]string{"__grouping_key", "id", "title"}).AddRow("p2", "l9", "Ahoj"))

		posts, err := sb.List(ctx, "Post", &ast.QueryNode{
			Name: "listPost",
			Fields: []ast.Node{
				&ast.FieldNode{Name: "id"},
				&ast.QueryNode{
					Name:      "localesByLocale",
					Fields:    fields("title"),
					Reduction: &ast.Reduction{Relation: "locales", By: ast.UniqueWhere{"locale": "cs"}},
				},
			},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		assert.Nil(t, posts[0]["localesByLocale"])
		assert.Equal(t, Object{"title": "Ahoj"}, posts[1]["localesByLocale"])
	})

	t.Run("reduction by a non unique key is rejected", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		_, err := sb.Explain("Post", &ast.QueryNode{
			Name: "listPost",
			Fields: []ast.Node{&ast.QueryNode{
				Name:      "localesByTitle",
				Fields:    fields("id"),
				Reduction: &ast.Reduction{Relation: "locales", By: ast.UniqueWhere{"title": "Hi"}},
			}},
		})
		assert.True(t, schema.IsConsistencyError(err))
		assert.ErrorContains(t, err, "do not form a unique key")
	})

	t.Run("reduction of a to-one relation is rejected", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		_, err := sb.Explain("Post", &ast.QueryNode{
			Name: "listPost",
			Fields: []ast.Node{&ast.QueryNode{
				Name:      "authorByName",
				Reduction: &ast.Reduction{Relation: "author", By: ast.UniqueWhere{"name": "x"}},
			}},
		})
		assert.True(t, schema.IsConsistencyError(err))
	})
}

func TestSelectBuilderRoot(t *testing.T) {
	ctx := context.Background()

	t.Run("get by unique key", func(t *testing.T) {
		sb, _, mock := openSelect(t, nil, nil)

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id", ("root_"."title") AS "title" FROM "post" AS "root_" ` +
			`WHERE "root_"."slug" = $1 ORDER BY "root_"."id" ASC`).
			WithArgs("hello").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("p1", "Hello"))

		post, err := sb.Get(ctx, "Post", &ast.QueryNode{
			Name:   "getPost",
			Fields: fields("id", "title"),
			Args:   ast.Args{By: ast.UniqueWhere{"slug": "hello"}},
		})
		require.NoError(t, err)
		assert.Equal(t, Object{"id": "p1", "title": "Hello"}, post)
	})

	t.Run("get with a non unique key", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		_, err := sb.Get(ctx, "Post", &ast.QueryNode{Name: "getPost", Args: ast.Args{By: ast.UniqueWhere{"title": "x"}}})
		assert.Error(t, err)
	})

	t.Run("missing row", func(t *testing.T) {
		sb, _, mock := openSelect(t, nil, nil)
		mock.ExpectQuery(`SELECT ("root_"."id") AS "id" FROM "post" AS "root_" WHERE "root_"."id" = $1 ORDER BY "root_"."id" ASC`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		post, err := sb.Get(ctx, "Post", &ast.QueryNode{Name: "getPost", Fields: fields("id"), Args: ast.Args{By: ast.UniqueWhere{"id": "nope"}}})
		require.NoError(t, err)
		assert.Nil(t, post)
	})

	t.Run("root pagination and ordering", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		filter := ast.Where{Fields: map[string]ast.FieldFilter{"title": ast.NotEq("draft")}}
		q, err := sb.Explain("Post", &ast.QueryNode{
			Name:   "listPost",
			Fields: fields("id"),
			Args: ast.Args{
				Filter:  &filter,
				OrderBy: []ast.OrderBy{{Path: []string{"author", "name"}, Direction: ast.Desc}},
				Offset:  ast.IntPtr(20),
				Limit:   ast.IntPtr(10),
			},
		})
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT ("root_"."id") AS "id" FROM "post" AS "root_" `+
				`LEFT JOIN "author" AS "root_author" ON "root_author"."id" = "root_"."author_id" `+
				`WHERE "root_"."title" <> $1 ORDER BY "root_author"."name" DESC, "root_"."id" ASC LIMIT 10 OFFSET 20`,
			q.SQL)
		assert.Equal(t, []interface{}{"draft"}, q.Args)
	})

	t.Run("ordering through to-many at root is invalid", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		_, err := sb.Explain("Author", &ast.QueryNode{
			Name: "listAuthor",
			Args: ast.Args{OrderBy: []ast.OrderBy{{Path: []string{"posts", "title"}, Direction: ast.Asc}}},
		})
		assert.Error(t, err)
	})

	t.Run("filter through many-has-many does not join", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		filter := ast.Where{Fields: map[string]ast.FieldFilter{
			"categories": ast.Where{Fields: map[string]ast.FieldFilter{"name": ast.Eq("X")}},
		}}
		q, err := sb.Explain("Post", &ast.QueryNode{Name: "listPost", Fields: fields("id"), Args: ast.Args{Filter: &filter}})
		require.NoError(t, err)
		assert.NotContains(t, q.SQL, "LEFT JOIN")
		assert.Contains(t, q.SQL, `"root_"."id" IN (SELECT`)
	})

	t.Run("negative limit", func(t *testing.T) {
		sb, _, _ := openSelect(t, nil, nil)
		_, err := sb.Explain("Post", &ast.QueryNode{Name: "listPost", Args: ast.Args{Limit: ast.IntPtr(-1)}})
		assert.Error(t, err)
	})
}

func localePermissions() schema.Permissions {
	return schema.Permissions{
		"PostLocale": {
			Predicates: map[string]ast.Where{
				"localeVisible": {Fields: map[string]ast.FieldFilter{"locale": ast.Variable("locale")}},
			},
			Operations: schema.Operations{
				Read: schema.FieldPermissions{
					"id":     schema.Grant(),
					"locale": schema.Grant(),
					"title":  schema.GrantIf("localeVisible"),
				},
				Update: schema.FieldPermissions{
					"locale": schema.Grant(),
				},
			},
		},
	}
}

func TestSelectBuilderACL(t *testing.T) {
	ctx := context.Background()

	t.Run("gated column is redacted with meta flag", func(t *testing.T) {
		sb, _, mock := openSelect(t, localePermissions(), acl.Variables{"locale": {"cs"}})

		mock.ExpectQuery(`SELECT ("root_"."id") AS "id", `+
			`(CASE WHEN "root_"."locale" IN ($1) THEN "root_"."title" ELSE NULL END) AS "title", `+
			`(COALESCE("root_"."locale" IN ($2), false)) AS "__meta_readable_title" `+
			`FROM "post_locale" AS "root_" ORDER BY "root_"."id" ASC`).
			WithArgs("cs", "cs").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "__meta_readable_title"}).
				AddRow("l1", "Ahoj", true).
				AddRow("l2", nil, false))

		locales, err := sb.List(ctx, "PostLocale", &ast.QueryNode{
			Name: "listPostLocale",
			Fields: []ast.Node{
				&ast.FieldNode{Name: "id"},
				&ast.FieldNode{Name: "title"},
				&ast.QueryNode{Name: ast.MetaField, Fields: []ast.Node{
					&ast.QueryNode{Name: "title", Fields: fields(ast.MetaReadable, ast.MetaUpdatable)},
					&ast.FieldNode{Name: "locale"},
				}},
			},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())

		require.Len(t, locales, 2)
		assert.Equal(t, "Ahoj", locales[0]["title"])
		assert.Nil(t, locales[1]["title"])
		assert.Equal(t, Object{
			"title":  Object{"readable": true, "updatable": false},
			"locale": Object{"readable": true, "updatable": true},
		}, locales[0][ast.MetaField])
		assert.Equal(t, Object{"readable": false, "updatable": false}, locales[1][ast.MetaField].(Object)["title"])
	})

	t.Run("filtering by a gated column narrows rows instead", func(t *testing.T) {
		sb, _, _ := openSelect(t, localePermissions(), acl.Variables{"locale": {"cs"}})
		filter := ast.Where{Fields: map[string]ast.FieldFilter{"title": ast.Eq("Ahoj")}}
		q, err := sb.Explain("PostLocale", &ast.QueryNode{Name: "listPostLocale", Fields: fields("id", "title"), Args: ast.Args{Filter: &filter}})
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT ("root_"."id") AS "id", ("root_"."title") AS "title" FROM "post_locale" AS "root_" `+
				`WHERE ("root_"."title" = $1 AND "root_"."locale" IN ($2)) ORDER BY "root_"."id" ASC`,
			q.SQL)
	})

	t.Run("field without grant denies all rows", func(t *testing.T) {
		sb, _, mock := openSelect(t, localePermissions(), acl.Variables{"locale": {"cs"}})
		mock.ExpectQuery(`SELECT ("root_"."id") AS "id", ("root_"."post_id") AS "__rel_post" FROM "post_locale" AS "root_" ` +
			`WHERE false ORDER BY "root_"."id" ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "__rel_post"}))

		locales, err := sb.List(ctx, "PostLocale", &ast.QueryNode{
			Name:   "listPostLocale",
			Fields: []ast.Node{&ast.FieldNode{Name: "id"}, &ast.QueryNode{Name: "post", Fields: fields("id")}},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Empty(t, locales)
	})
}
