package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/schema"
	"github.com/satishbabariya/contentql/schema/schematest"
)

const editorACL = `
acl:
  roles:
    editor:
      entities:
        Post:
          predicates:
            published: {publishedAt: {null: false}}
            mine: {author: {id: {in: {variable: authorId}}}}
          operations:
            read: {id: true, title: published, slug: true}
            create: {title: true, slug: true, author: mine}
            update: {title: mine, slug: false}
            delete: mine
        PostLocale:
          operations:
            read: {id: true, locale: true}
            delete: false
`

func TestDecodeRoles(t *testing.T) {
	s := schematest.Blog()

	roles, err := DecodeRoles(s, []byte(editorACL))
	require.NoError(t, err)
	require.Contains(t, roles, "editor")

	post := roles["editor"]["Post"]
	assert.Equal(t, schema.FieldPermissions{
		"id":    schema.Grant(),
		"title": schema.GrantIf("published"),
		"slug":  schema.Grant(),
	}, post.Operations.Read)
	assert.Equal(t, schema.FieldPermissions{"title": schema.GrantIf("mine")}, post.Operations.Update)
	assert.Equal(t, schema.GrantIf("mine"), post.Operations.Delete)

	assert.Equal(t, ast.Where{Fields: map[string]ast.FieldFilter{"publishedAt": ast.IsNull(false)}}, post.Predicates["published"])
	assert.Equal(t, ast.Where{Fields: map[string]ast.FieldFilter{
		"author": ast.Where{Fields: map[string]ast.FieldFilter{"id": ast.Variable("authorId")}},
	}}, post.Predicates["mine"])

	locale := roles["editor"]["PostLocale"]
	assert.False(t, locale.Operations.Delete.Granted())
	assert.Empty(t, locale.Operations.Update)
}

func TestDecodeRolesErrors(t *testing.T) {
	s := schematest.Blog()

	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{
			name: "undefined predicate",
			doc:  "acl:\n  roles:\n    r:\n      entities:\n        Post:\n          operations:\n            read: {title: hidden}\n",
			msg:  `undefined predicate "hidden"`,
		},
		{
			name: "unknown field",
			doc:  "acl:\n  roles:\n    r:\n      entities:\n        Post:\n          operations:\n            read: {body: true}\n",
			msg:  "unknown field",
		},
		{
			name: "unknown entity",
			doc:  "acl:\n  roles:\n    r:\n      entities:\n        Page: {}\n",
			msg:  "unknown entity",
		},
		{
			name: "bad grant",
			doc:  "acl:\n  roles:\n    r:\n      entities:\n        Post:\n          operations:\n            read: {title: 1}\n",
			msg:  "expected a boolean or predicate name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRoles(s, []byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
