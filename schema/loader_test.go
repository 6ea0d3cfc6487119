package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
	"github.com/satishbabariya/contentql/schema/schematest"
)

func TestLoadModel(t *testing.T) {
	s := schematest.Blog()

	t.Run("defaults table and column names", func(t *testing.T) {
		post := s.MustEntity("Post")
		assert.Equal(t, "post", post.TableName)
		assert.Equal(t, "id", post.PrimaryField)
		assert.Equal(t, "id", post.PrimaryColumn)

		published, err := post.Column("publishedAt")
		require.NoError(t, err)
		assert.Equal(t, "published_at", published.ColumnName)
		assert.True(t, published.Nullable)

		locale := s.MustEntity("PostLocale")
		assert.Equal(t, "post_locale", locale.TableName)
	})

	t.Run("keeps declaration order", func(t *testing.T) {
		post := s.MustEntity("Post")
		assert.Equal(t, []string{"id", "title", "slug", "publishedAt", "author", "locales", "categories"}, post.FieldOrder)
	})

	t.Run("resolves relation kinds and joining metadata", func(t *testing.T) {
		post := s.MustEntity("Post")

		author, err := post.Relation("author")
		require.NoError(t, err)
		assert.Equal(t, schema.ManyHasOne, author.Kind)
		assert.Equal(t, "author_id", author.JoiningColumn.ColumnName)

		categories, err := post.Relation("categories")
		require.NoError(t, err)
		assert.Equal(t, schema.ManyHasManyOwning, categories.Kind)
		assert.Equal(t, "post_categories", categories.JoiningTable.TableName)
		assert.Equal(t, "post_id", categories.JoiningTable.JoiningColumn)
		assert.Equal(t, "category_id", categories.JoiningTable.InverseJoiningColumn)

		profile, err := s.MustEntity("Author").Relation("profile")
		require.NoError(t, err)
		assert.Equal(t, schema.OneHasOneInverse, profile.Kind)

		posts, err := s.MustEntity("Category").Relation("posts")
		require.NoError(t, err)
		assert.Equal(t, schema.ManyHasManyInverse, posts.Kind)
	})

	t.Run("owning side of inverse relation", func(t *testing.T) {
		author := s.MustEntity("Author")
		posts, err := author.Relation("posts")
		require.NoError(t, err)

		column, err := s.TargetJoiningColumn(author, posts)
		require.NoError(t, err)
		assert.Equal(t, "author_id", column)
	})
}

func TestLoadModelErrors(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{
			name: "unknown target",
			model: `
entities:
  Post:
    fields:
      author: {relation: manyHasOne, target: Nobody}
`,
		},
		{
			name: "inverse without owning side",
			model: `
entities:
  Author:
    fields:
      posts: {relation: oneHasMany, target: Post, ownedBy: writer}
  Post:
    fields:
      title: {type: string}
`,
		},
		{
			name: "unsupported format version",
			model: `
version: "2.1"
entities: {}
`,
		},
		{
			name: "unknown enum",
			model: `
entities:
  Post:
    fields:
      locale: {type: enum, enum: missing}
`,
		},
		{
			name: "field name outside identifier charset",
			model: `
entities:
  Post:
    fields:
      "title$": {type: string}
`,
		},
		{
			name: "unknown relation type",
			model: `
entities:
  Post:
    fields:
      author: {relation: sometimes, target: Post}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.LoadModel([]byte(tt.model))
			assert.Error(t, err)
		})
	}
}

func TestCheckFormatVersion(t *testing.T) {
	assert.NoError(t, schema.CheckFormatVersion(""))
	assert.NoError(t, schema.CheckFormatVersion("1.0"))
	assert.NoError(t, schema.CheckFormatVersion("1.4.2"))
	assert.Error(t, schema.CheckFormatVersion("2.0"))
	assert.Error(t, schema.CheckFormatVersion("not-a-version"))
}

func TestResolveUnique(t *testing.T) {
	s := schematest.Blog()
	post := s.MustEntity("Post")
	locale := s.MustEntity("PostLocale")

	assert.NoError(t, s.ResolveUnique(post, ast.UniqueWhere{"id": "p1"}))
	assert.NoError(t, s.ResolveUnique(post, ast.UniqueWhere{"slug": "hello"}))
	assert.NoError(t, s.ResolveUnique(locale, ast.UniqueWhere{
		"post":   ast.UniqueWhere{"id": "p1"},
		"locale": "cs",
	}))

	var ue *schema.UniqueError
	assert.ErrorAs(t, s.ResolveUnique(post, ast.UniqueWhere{"title": "x"}), &ue)
	assert.ErrorAs(t, s.ResolveUnique(post, ast.UniqueWhere{}), &ue)
	assert.ErrorAs(t, s.ResolveUnique(post, ast.UniqueWhere{"id": nil}), &ue)
	assert.ErrorAs(t, s.ResolveUnique(locale, ast.UniqueWhere{"locale": "cs"}), &ue)

	_, ok := post.IsPrimaryLookup(ast.UniqueWhere{"id": "p1"})
	assert.True(t, ok)
	_, ok = post.IsPrimaryLookup(ast.UniqueWhere{"slug": "x"})
	assert.False(t, ok)
}
