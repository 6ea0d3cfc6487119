package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/ast"
)

func TestConditionBuilder(t *testing.T) {
	col := Column("root_", "title")
	b := ConditionBuilder{}

	tests := []struct {
		name     string
		cond     ast.Condition
		wantSQL  string
		wantArgs []interface{}
	}{
		{"eq", ast.Eq("hello"), `"root_"."title" = $1`, []interface{}{"hello"}},
		{"notEq", ast.NotEq("hello"), `"root_"."title" <> $1`, []interface{}{"hello"}},
		{"eq null", ast.Eq(nil), `"root_"."title" IS NULL`, nil},
		{"in", ast.In("a", "b"), `"root_"."title" IN ($1,$2)`, []interface{}{"a", "b"}},
		{"in empty", ast.In(), `(1=0)`, nil},
		{"notIn", ast.NotIn("a"), `"root_"."title" NOT IN ($1)`, []interface{}{"a"}},
		{"lt", ast.Lt(3), `"root_"."title" < $1`, []interface{}{3}},
		{"lte", ast.Lte(3), `"root_"."title" <= $1`, []interface{}{3}},
		{"gt", ast.Gt(3), `"root_"."title" > $1`, []interface{}{3}},
		{"gte", ast.Gte(3), `"root_"."title" >= $1`, []interface{}{3}},
		{"null", ast.IsNull(true), `"root_"."title" IS NULL`, nil},
		{"not null", ast.IsNull(false), `"root_"."title" IS NOT NULL`, nil},
		{"always", ast.Always(), `true`, nil},
		{"never", ast.NeverCondition(), `false`, nil},
		{
			"or",
			ast.Condition{Or: []ast.Condition{ast.Eq("a"), ast.Eq("b")}},
			`("root_"."title" = $1 OR "root_"."title" = $2)`,
			[]interface{}{"a", "b"},
		},
		{
			"and with operand",
			ast.Condition{Operands: []ast.Operand{{Op: ast.OpGt, Value: 1}}, And: []ast.Condition{ast.Lt(5)}},
			`("root_"."title" > $1 AND ("root_"."title" < $2))`,
			[]interface{}{1, 5},
		},
		{
			"not",
			ast.Condition{Not: &ast.Condition{Operands: []ast.Operand{{Op: ast.OpEq, Value: "x"}}}},
			`NOT ("root_"."title" = $1)`,
			[]interface{}{"x"},
		},
		{"empty or is false", ast.Condition{Or: []ast.Condition{}}, `(1=0)`, nil},
		{
			"or with empty branch is true",
			ast.Condition{Or: []ast.Condition{ast.Eq("a"), {}}},
			`true`,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := b.Build(col, tt.cond)
			require.NoError(t, err)
			require.NotNil(t, expr)

			q, err := Build(expr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, q.SQL)
			if tt.wantArgs == nil {
				assert.Empty(t, q.Args)
			} else {
				assert.Equal(t, tt.wantArgs, q.Args)
			}
		})
	}

	t.Run("empty condition emits nothing", func(t *testing.T) {
		expr, err := b.Build(col, ast.Condition{})
		require.NoError(t, err)
		assert.Nil(t, expr)

		expr, err = b.Build(col, ast.Condition{And: []ast.Condition{}})
		require.NoError(t, err)
		assert.Nil(t, expr)
	})

	t.Run("unresolved variable fails", func(t *testing.T) {
		_, err := b.Build(col, ast.Variable("locale"))
		assert.Error(t, err)
	})

	t.Run("values are always bound", func(t *testing.T) {
		expr, err := b.Build(col, ast.Eq("'; DROP TABLE post; --"))
		require.NoError(t, err)
		q, err := Build(expr)
		require.NoError(t, err)
		assert.NotContains(t, q.SQL, "DROP")
	})
}
