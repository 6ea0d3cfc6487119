package builder

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/contentql/query/sqlgen"
)

const (
	// GroupingKey is the column relating grouped rows to their parent
	GroupingKey = "__grouping_key"
	// RowNumberColumn holds the per-group rank of a row
	RowNumberColumn = "__rownumber"

	limitByGroupCTE = "data"
)

// LimitByGroupWrapper bounds a select to an offset/limit window per group in a single statement
type LimitByGroupWrapper struct{}

// Wrap ranks rows of inner with ROW_NUMBER() OVER (PARTITION BY partitionBy ORDER BY orderBy)
// and keeps ranks (offset, offset+limit] of each group. columns are the aliases inner selects.
func (LimitByGroupWrapper) Wrap(inner sq.SelectBuilder, partitionBy string, orderBy []string, columns []string, offset, limit *int) sq.Sqlizer {
	if offset == nil && limit == nil {
		return inner
	}
	window := fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s)", partitionBy, strings.Join(orderBy, ", "))
	ranked := inner.Column(sqlgen.As(sqlgen.Raw(window), RowNumberColumn))

	outerCols := make([]string, len(columns))
	for i, c := range columns {
		outerCols[i] = sqlgen.Column(limitByGroupCTE, c)
	}
	rank := sqlgen.Column(limitByGroupCTE, RowNumberColumn)

	from := 0
	if offset != nil && *offset > 0 {
		from = *offset
	}
	outer := sqlgen.Statement.
		Select(outerCols...).
		From(sqlgen.QuoteIdent(limitByGroupCTE)).
		Where(sq.Gt{rank: from})
	if limit != nil {
		outer = outer.Where(sq.LtOrEq{rank: from + *limit})
	}
	outer = outer.OrderBy(rank + " ASC")

	return sqlgen.With(limitByGroupCTE, ranked).Statement(outer)
}
