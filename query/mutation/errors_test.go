package mutation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
)

func TestPathString(t *testing.T) {
	p := Path{}.Field("posts").Item(2, "").Field("locales").Item(0, "cs")
	assert.Equal(t, "posts[2].locales[0:cs]", p.String())
	assert.Equal(t, "", Path{}.String())
}

func TestTranslate(t *testing.T) {
	path := Path{}.Field("author")

	cases := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"pq unique", &pq.Error{Code: "23505", Message: "dup"}, CodeUniqueConstraintViolation},
		{"pgx foreign key", &pgconn.PgError{Code: "23503", Message: "fk"}, CodeForeignKeyViolation},
		{"wrapped not null", fmt.Errorf("query execution failed: %w", &pq.Error{Code: "23502", Message: "null"}), CodeNotNullViolation},
		{"no result", &NoResultError{Entity: "Author", By: ast.UniqueWhere{"id": "a1"}}, CodeNotFoundOrDenied},
		{"denied", fmt.Errorf("x: %w", acl.ErrNotFoundOrDenied), CodeNotFoundOrDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ie *InputError
			require.True(t, errors.As(translate(path, tc.err), &ie))
			assert.Equal(t, tc.code, ie.Code)
			assert.Equal(t, "author", ie.Path.String())
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		assert.Same(t, boom, translate(path, boom))
		assert.Equal(t, &pq.Error{Code: "42P01"}, translate(path, &pq.Error{Code: "42P01"}))
	})
}

func TestChangeSet(t *testing.T) {
	c := NewChangeSet()
	c.Add(acl.Change{Entity: "Post", Event: acl.EventCreate, PrimaryValue: "p1", Fields: []string{"title"}})
	c.Add(acl.Change{Entity: "Post", Event: acl.EventUpdate, PrimaryValue: "p1", Fields: []string{"slug"}})
	c.Add(acl.Change{Entity: "Post", Event: acl.EventUpdate, PrimaryValue: "p1", Fields: []string{"title", "slug"}})
	c.Add(acl.Change{Entity: "Author", Event: acl.EventCreate, PrimaryValue: "a1", Fields: []string{"name"}})

	assert.Equal(t, []acl.Change{
		{Entity: "Post", Event: acl.EventCreate, PrimaryValue: "p1", Fields: []string{"title"}},
		{Entity: "Post", Event: acl.EventUpdate, PrimaryValue: "p1", Fields: []string{"slug", "title"}},
		{Entity: "Author", Event: acl.EventCreate, PrimaryValue: "a1", Fields: []string{"name"}},
	}, c.Changes())

	c.Deleted("Post", "p1")
	assert.Equal(t, []acl.Change{
		{Entity: "Author", Event: acl.EventCreate, PrimaryValue: "a1", Fields: []string{"name"}},
	}, c.Changes())

	c.Add(acl.Change{Entity: "Post", Event: acl.EventCreate, PrimaryValue: "p1", Fields: []string{"title"}})
	assert.Equal(t, []acl.Change{
		{Entity: "Author", Event: acl.EventCreate, PrimaryValue: "a1", Fields: []string{"name"}},
		{Entity: "Post", Event: acl.EventCreate, PrimaryValue: "p1", Fields: []string{"title"}},
	}, c.Changes())
}
