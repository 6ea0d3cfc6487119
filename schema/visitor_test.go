package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/schema"
	"github.com/satishbabariya/contentql/schema/schematest"
)

type kindVisitor struct{}

func (kindVisitor) VisitColumn(_ *schema.Entity, c *schema.Column) string {
	return "column:" + c.ColumnName
}
func (kindVisitor) VisitManyHasOne(ctx schema.RelationContext) string {
	return "manyHasOne:" + ctx.TargetEntity.Name
}
func (kindVisitor) VisitOneHasMany(ctx schema.RelationContext) string {
	return "oneHasMany:" + ctx.TargetRelation.Name
}
func (kindVisitor) VisitOneHasOneOwning(ctx schema.RelationContext) string {
	return "oneHasOneOwning:" + ctx.TargetEntity.Name
}
func (kindVisitor) VisitOneHasOneInverse(ctx schema.RelationContext) string {
	return "oneHasOneInverse:" + ctx.TargetRelation.Name
}
func (kindVisitor) VisitManyHasManyOwning(ctx schema.RelationContext) string {
	return "manyHasManyOwning:" + ctx.Relation.JoiningTable.TableName
}
func (kindVisitor) VisitManyHasManyInverse(ctx schema.RelationContext) string {
	return "manyHasManyInverse:" + ctx.TargetRelation.Name
}

func TestAcceptFieldVisitor(t *testing.T) {
	s := schematest.Blog()

	tests := []struct {
		entity, field, want string
	}{
		{"Post", "publishedAt", "column:published_at"},
		{"Post", "author", "manyHasOne:Author"},
		{"Author", "posts", "oneHasMany:author"},
		{"Profile", "author", "oneHasOneOwning:Author"},
		{"Author", "profile", "oneHasOneInverse:author"},
		{"Post", "categories", "manyHasManyOwning:post_categories"},
		{"Category", "posts", "manyHasManyInverse:categories"},
	}
	for _, tt := range tests {
		t.Run(tt.entity+"."+tt.field, func(t *testing.T) {
			got, err := schema.AcceptFieldVisitor[string](s, s.MustEntity(tt.entity), tt.field, kindVisitor{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown field is a consistency error", func(t *testing.T) {
		_, err := schema.AcceptFieldVisitor[string](s, s.MustEntity("Post"), "nope", kindVisitor{})
		assert.True(t, schema.IsConsistencyError(err))
	})
}
