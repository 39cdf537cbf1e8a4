package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyRows bulk-inserts items into table with the PostgreSQL COPY protocol.
// row maps one item to its values in column order. Rows are produced lazily
// while COPY streams.
func CopyRows[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, row func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	next := 0
	src := pgx.CopyFromFunc(func() ([]any, error) {
		if next >= len(items) {
			return nil, nil
		}
		vals := row(items[next])
		next++
		if len(vals) != len(columns) {
			return nil, eris.Errorf("db: %s row %d has %d values, want %d", table, next-1, len(vals), len(columns))
		}
		return vals, nil
	})

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}
