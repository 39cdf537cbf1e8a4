package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/diaperwatch/diaperwatch-cli/internal/db"
	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgListingColumns = `id, brand, type, size, count, retailer, price::float8, price_per_unit::float8, url, in_stock, last_fetched_at, created_at, updated_at`

const (
	pgUpsertListing = `INSERT INTO products (brand, type, size, count, retailer, price, price_per_unit, url, in_stock, last_fetched_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
ON CONFLICT (brand, type, size, retailer) DO UPDATE SET
	count = EXCLUDED.count,
	price = EXCLUDED.price,
	price_per_unit = EXCLUDED.price_per_unit,
	url = EXCLUDED.url,
	in_stock = EXCLUDED.in_stock,
	last_fetched_at = EXCLUDED.last_fetched_at,
	updated_at = EXCLUDED.updated_at
RETURNING ` + pgListingColumns

	pgInsertHistory = `INSERT INTO price_history (product_id, price, price_per_unit, in_stock, recorded_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	pgListHistory   = `SELECT id, product_id, price::float8, price_per_unit::float8, in_stock, recorded_at FROM price_history WHERE product_id = $1 ORDER BY recorded_at ASC, id ASC`
	pgInsertSession = `INSERT INTO scrape_logs (id, retailer, started_at, completed_at, items_found, success, error_message, duration_ms) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	pgLastSuccess   = `SELECT completed_at FROM scrape_logs WHERE success AND items_found > 0 ORDER BY completed_at DESC LIMIT 1`
	pgCountListings = `SELECT COUNT(*) FROM products`
)

var historyColumns = []string{"product_id", "price", "price_per_unit", "in_stock", "recorded_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := poolConfig(connString, poolCfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

// poolConfig parses connString and applies pool sizing. Statements are
// prepared lazily and cached per connection by pgx, so the store passes SQL
// text and needs no AfterConnect hook.
func poolConfig(connString string, poolCfg *PoolConfig) (*pgxpool.Config, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	return pgxCfg, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	id              BIGSERIAL PRIMARY KEY,
	brand           TEXT NOT NULL,
	type            TEXT NOT NULL,
	size            TEXT NOT NULL,
	count           INTEGER NOT NULL CHECK (count > 0),
	retailer        TEXT NOT NULL,
	price           NUMERIC(10,2) NOT NULL,
	price_per_unit  NUMERIC(10,4) NOT NULL,
	url             TEXT NOT NULL DEFAULT '',
	in_stock        BOOLEAN NOT NULL DEFAULT true,
	last_fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (brand, type, size, retailer)
);

CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_size ON products(size);
CREATE INDEX IF NOT EXISTS idx_products_retailer ON products(retailer);
CREATE INDEX IF NOT EXISTS idx_products_price_per_unit ON products(price_per_unit);

CREATE TABLE IF NOT EXISTS price_history (
	id             BIGSERIAL PRIMARY KEY,
	product_id     BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	price          NUMERIC(10,2) NOT NULL,
	price_per_unit NUMERIC(10,4) NOT NULL,
	in_stock       BOOLEAN NOT NULL DEFAULT true,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id, recorded_at);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	retailer      TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL,
	items_found   INTEGER NOT NULL DEFAULT 0 CHECK (items_found >= 0),
	success       BOOLEAN NOT NULL,
	error_message TEXT,
	duration_ms   BIGINT
);

CREATE INDEX IF NOT EXISTS idx_scrape_logs_retailer ON scrape_logs(retailer, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_scrape_logs_completed ON scrape_logs(completed_at DESC);
`

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l model.ProductListing) (*model.ProductListing, error) {
	if err := validateListing(l); err != nil {
		return nil, err
	}
	now := s.clock()
	fetched := l.LastFetchedAt
	if fetched.IsZero() {
		fetched = now
	}

	row := s.pool.QueryRow(ctx, pgUpsertListing,
		l.Brand, l.Type, l.Size, l.Count, l.Retailer,
		model.RoundPrice(l.Price), model.UnitPrice(l.Price, l.Count),
		l.URL, l.InStock, fetched.UTC(), now,
	)
	out, err := scanListing(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert listing %s", l.Key())
	}
	return &out, nil
}

func (s *PostgresStore) QueryListings(ctx context.Context, filter model.ListingFilter, sort model.ListingSort) ([]model.ProductListing, error) {
	where, args := whereClause(filter, func(n int) string { return fmt.Sprintf("$%d", n) })
	query := `SELECT ` + pgListingColumns + ` FROM products` + where + orderClause(sort)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query listings")
	}
	defer rows.Close()

	var out []model.ProductListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

func (s *PostgresStore) DistinctValues(ctx context.Context, column model.DistinctColumn) ([]string, error) {
	query, err := distinctQuery(column)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: distinct %s", column)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan distinct %s", column)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate distinct %s", column)
	}
	return sortDistinct(column, values), nil
}

func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, pgCountListings).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count listings")
	}
	return n, nil
}

func (s *PostgresStore) RecordHistory(ctx context.Context, listingID int64, totalPrice, pricePerUnit float64, inStock bool) (*model.PriceHistoryEntry, error) {
	e := model.PriceHistoryEntry{
		ProductID:    listingID,
		Price:        model.RoundPrice(totalPrice),
		PricePerUnit: model.RoundUnitPrice(pricePerUnit),
		InStock:      inStock,
		RecordedAt:   s.clock(),
	}
	err := s.pool.QueryRow(ctx, pgInsertHistory, e.ProductID, e.Price, e.PricePerUnit, e.InStock, e.RecordedAt).Scan(&e.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record history for listing %d", listingID)
	}
	return &e, nil
}

// AppendHistory bulk-loads history rows with COPY.
func (s *PostgresStore) AppendHistory(ctx context.Context, entries []model.PriceHistoryEntry) (int, error) {
	now := s.clock()
	n, err := db.CopyRows(ctx, s.pool, "price_history", historyColumns, entries, func(e model.PriceHistoryEntry) []any {
		at := e.RecordedAt
		if at.IsZero() {
			at = now
		}
		return []any{e.ProductID, model.RoundPrice(e.Price), model.RoundUnitPrice(e.PricePerUnit), e.InStock, at.UTC()}
	})
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append history")
	}
	return int(n), nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, listingID int64) ([]model.PriceHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, pgListHistory, listingID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list history for listing %d", listingID)
	}
	defer rows.Close()

	var out []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Price, &e.PricePerUnit, &e.InStock, &e.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		e.RecordedAt = e.RecordedAt.UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}

func (s *PostgresStore) RecordSession(ctx context.Context, sess model.ScrapeSessionLog) error {
	var errMsg *string
	if sess.ErrorMessage != "" {
		errMsg = &sess.ErrorMessage
	}
	_, err := s.pool.Exec(ctx, pgInsertSession,
		sess.ID, sess.Retailer, sess.StartedAt.UTC(), sess.CompletedAt.UTC(),
		sess.ItemsFound, sess.Success, errMsg, sess.DurationMs,
	)
	return eris.Wrapf(err, "postgres: record session for %s", sess.Retailer)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSessionLog, error) {
	query := `SELECT id, retailer, started_at, completed_at, items_found, success, error_message, duration_ms FROM scrape_logs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Retailer != "" {
		query += fmt.Sprintf(` AND retailer = $%d`, argIdx)
		args = append(args, filter.Retailer)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argIdx)
		args = append(args, filter.Since.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, sessionLimit(filter))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.ScrapeSessionLog
	for rows.Next() {
		var sess model.ScrapeSessionLog
		var errMsg *string
		if err := rows.Scan(&sess.ID, &sess.Retailer, &sess.StartedAt, &sess.CompletedAt,
			&sess.ItemsFound, &sess.Success, &errMsg, &sess.DurationMs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		if errMsg != nil {
			sess.ErrorMessage = *errMsg
		}
		sess.StartedAt = sess.StartedAt.UTC()
		sess.CompletedAt = sess.CompletedAt.UTC()
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

func (s *PostgresStore) LastSuccessfulRun(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, pgLastSuccess).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "postgres: last successful run")
	}
	return t.UTC(), true, nil
}
