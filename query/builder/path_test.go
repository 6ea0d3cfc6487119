package builder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPath(t *testing.T) {
	root := NewRootPath(RootAlias)

	t.Run("deterministic alias", func(t *testing.T) {
		a := root.For("author").For("posts")
		b := root.For("author").For("posts")
		assert.Equal(t, "root_author_posts", a.Alias())
		assert.Equal(t, a.Alias(), b.Alias())
		assert.True(t, a.Equal(b))
		assert.Equal(t, "root_.author.posts", a.String())
	})

	t.Run("back returns parent", func(t *testing.T) {
		p := root.For("author").For("posts")
		assert.Equal(t, "root_author", p.Back().Alias())
		assert.True(t, p.Back().Equal(root.For("author")))
		assert.True(t, root.Back().Equal(root))
		assert.True(t, p.Back().Back().IsRoot())
	})

	t.Run("for does not share segments", func(t *testing.T) {
		base := root.For("a")
		x := base.For("x")
		y := base.For("y")
		assert.Equal(t, []string{"a", "x"}, x.Fields())
		assert.Equal(t, []string{"a", "y"}, y.Fields())
	})

	t.Run("long aliases are shortened deterministically", func(t *testing.T) {
		p := root
		for i := 0; i < 10; i++ {
			p = p.For("someLongRelationName")
		}
		assert.LessOrEqual(t, len(p.Alias()), 63)

		q := root
		for i := 0; i < 10; i++ {
			q = q.For("someLongRelationName")
		}
		assert.Equal(t, p.Alias(), q.Alias())
	})

	t.Run("distinct paths never share an alias", func(t *testing.T) {
		nested := root.For("author").For("profile")
		flat := root.For("author_profile")
		assert.False(t, nested.Equal(flat))
		assert.Equal(t, "root_author_profile", nested.Alias())
		assert.Equal(t, "root_author$profile", flat.Alias())
		assert.NotEqual(t, nested.Alias(), root.For("author_").For("profile").Alias())
	})

	t.Run("different roots differ", func(t *testing.T) {
		assert.False(t, NewRootPath("a").For("x").Equal(NewRootPath("b").For("x")))
	})
}

func TestPathFactory(t *testing.T) {
	f := NewPathFactory()
	root := f.Root()

	first := f.Subquery(root, "locales")
	second := f.Subquery(root, "locales")

	assert.Equal(t, "root_locales_1", first.Alias())
	assert.Equal(t, "root_locales_2", second.Alias())
	assert.True(t, first.IsRoot())
	assert.True(t, strings.HasPrefix(first.For("post").Alias(), "root_locales_1"))
}
