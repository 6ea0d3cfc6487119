package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/contentql/query/sqlgen"
)

func TestConn(t *testing.T) {
	ctx := context.Background()

	t.Run("select normalises bytes", func(t *testing.T) {
		db, mock := newMock(t)
		conn := NewConn(db)

		mock.ExpectQuery(`SELECT "id", "n" FROM "t"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "n"}).AddRow([]byte("x1"), int64(3)))

		rows, err := conn.Select(ctx, sqlgen.Query{SQL: `SELECT "id", "n" FROM "t"`})
		require.NoError(t, err)
		assert.Equal(t, []sqlgen.Row{{"id": "x1", "n": int64(3)}}, rows)
		assert.Equal(t, int64(1), conn.Statements())
	})

	t.Run("exec returns affected rows", func(t *testing.T) {
		db, mock := newMock(t)
		conn := NewConn(db)

		mock.ExpectExec(`DELETE FROM "t" WHERE "id" = $1`).
			WithArgs("x1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := conn.Exec(ctx, sqlgen.Query{SQL: `DELETE FROM "t" WHERE "id" = $1`, Args: []interface{}{"x1"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		db, mock := newMock(t)
		conn := NewConn(db)
		boom := errors.New("boom")

		mock.ExpectQuery(`SELECT 1`).WillReturnError(boom)
		_, err := conn.Select(ctx, sqlgen.Query{SQL: `SELECT 1`})
		assert.ErrorIs(t, err, boom)

		mock.ExpectExec(`SELECT 2`).WillReturnError(boom)
		_, err = conn.Exec(ctx, sqlgen.Query{SQL: `SELECT 2`})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(2), conn.Statements())
	})
}
