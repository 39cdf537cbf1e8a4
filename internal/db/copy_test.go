package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type price struct {
	id    int64
	total float64
}

var priceColumns = []string{"product_id", "price"}

func priceRow(p price) []any { return []any{p.id, p.total} }

// drainPool consumes the COPY source the way pgx does.
type drainPool struct {
	Pool
	rows [][]any
}

func (d *drainPool) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return int64(len(d.rows)), err
		}
		d.rows = append(d.rows, vals)
	}
	return int64(len(d.rows)), src.Err()
}

func TestCopyRows_Empty(t *testing.T) {
	n, err := CopyRows(context.Background(), nil, "price_history", priceColumns, []price(nil), priceRow)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows_StreamsRowsInOrder(t *testing.T) {
	pool := &drainPool{}
	n, err := CopyRows(context.Background(), pool, "price_history", priceColumns,
		[]price{{1, 54.97}, {2, 49.99}, {3, 39.99}}, priceRow)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, [][]any{{int64(1), 54.97}, {int64(2), 49.99}, {int64(3), 39.99}}, pool.rows)
}

func TestCopyRows_ColumnMismatch(t *testing.T) {
	pool := &drainPool{}
	_, err := CopyRows(context.Background(), pool, "price_history", priceColumns,
		[]price{{1, 54.97}}, func(p price) []any { return []any{p.id} })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 values, want 2")
}

func TestCopyRows_Mock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"price_history"}, priceColumns).WillReturnResult(2)

	n, err := CopyRows(context.Background(), mock, "price_history", priceColumns, []price{{1, 54.97}, {2, 49.99}}, priceRow)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"price_history"}, priceColumns).WillReturnError(errors.New("copy failed"))

	_, err = CopyRows(context.Background(), mock, "price_history", priceColumns, []price{{1, 54.97}}, priceRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO price_history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_SatisfiedByMock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var _ Pool = mock
}
