package sqlgen

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// CTE represents a Common Table Expression
type CTE struct {
	Name    string
	Columns []string
	Query   sq.Sqlizer
}

// WithBuilder builds WITH … AS (…) prefixes
type WithBuilder struct {
	ctes []CTE
}

// With starts a WITH clause
func With(name string, query sq.Sqlizer) *WithBuilder {
	return (&WithBuilder{}).With(name, query)
}

// With adds a CTE
func (w *WithBuilder) With(name string, query sq.Sqlizer) *WithBuilder {
	w.ctes = append(w.ctes, CTE{Name: name, Query: query})
	return w
}

// WithColumns adds a CTE with explicit column names
func (w *WithBuilder) WithColumns(name string, columns []string, query sq.Sqlizer) *WithBuilder {
	w.ctes = append(w.ctes, CTE{Name: name, Columns: columns, Query: query})
	return w
}

// Statement attaches the main statement
func (w *WithBuilder) Statement(main sq.Sqlizer) sq.Sqlizer {
	return withStatement{ctes: append([]CTE(nil), w.ctes...), main: main}
}

type withStatement struct {
	ctes []CTE
	main sq.Sqlizer
}

func (s withStatement) ToSql() (string, []interface{}, error) {
	if len(s.ctes) == 0 {
		return s.main.ToSql()
	}

	var parts []string
	var args []interface{}
	for _, cte := range s.ctes {
		sqlStr, cteArgs, err := cte.Query.ToSql()
		if err != nil {
			return "", nil, fmt.Errorf("cte %s: %w", cte.Name, err)
		}
		name := QuoteIdent(cte.Name)
		if len(cte.Columns) > 0 {
			quoted := make([]string, len(cte.Columns))
			for i, c := range cte.Columns {
				quoted[i] = QuoteIdent(c)
			}
			name += " (" + strings.Join(quoted, ", ") + ")"
		}
		parts = append(parts, fmt.Sprintf("%s AS (%s)", name, sqlStr))
		args = append(args, cteArgs...)
	}

	mainSQL, mainArgs, err := s.main.ToSql()
	if err != nil {
		return "", nil, err
	}
	args = append(args, mainArgs...)
	return "WITH " + strings.Join(parts, ", ") + " " + mainSQL, args, nil
}
