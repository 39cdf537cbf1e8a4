package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

func TestOrderClause(t *testing.T) {
	tests := []struct {
		sort model.ListingSort
		want string
	}{
		{model.ListingSort{}, " ORDER BY price_per_unit ASC, id ASC"},
		{model.ListingSort{Field: model.SortTotalPrice, Desc: true}, " ORDER BY price DESC, id ASC"},
		{model.ListingSort{Field: model.SortBrand}, " ORDER BY brand ASC, id ASC"},
		{model.ListingSort{Field: model.SortUpdatedAt, Desc: true}, " ORDER BY updated_at DESC, id ASC"},
		{model.ListingSort{Field: "price; DROP TABLE products"}, " ORDER BY price_per_unit ASC, id ASC"},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort.Field), func(t *testing.T) {
			assert.Equal(t, tt.want, orderClause(tt.sort))
		})
	}
}

func TestWhereClause(t *testing.T) {
	pg := func(n int) string { return fmt.Sprintf("$%d", n) }

	where, args := whereClause(model.ListingFilter{}, pg)
	assert.Equal(t, " WHERE in_stock", where)
	assert.Empty(t, args)

	where, args = whereClause(model.ListingFilter{Brand: "Pampers", Size: "all", Retailer: "costco"}, pg)
	assert.Equal(t, " WHERE in_stock AND brand = $1 AND retailer = $2", where)
	assert.Equal(t, []any{"Pampers", "costco"}, args)

	where, args = whereClause(model.ListingFilter{Size: "3"}, func(int) string { return "?" })
	assert.Equal(t, " WHERE in_stock AND size = ?", where)
	assert.Equal(t, []any{"3"}, args)
}

func TestDistinctQuery(t *testing.T) {
	q, err := distinctQuery(model.DistinctRetailer)
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT retailer FROM products ORDER BY retailer", q)

	_, err = distinctQuery("url")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"file:/tmp/catalog.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		sqliteDSN("/tmp/catalog.db"))
	assert.Equal(t,
		"file:x.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		sqliteDSN("file:x.db?mode=rwc"))
	assert.Contains(t, sqliteDSN(""), "file::memory:?")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "sqlite", DatabaseURL: t.TempDir() + "/open.db"})
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
}
