package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/diaperwatch/diaperwatch-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// sqliteDSN turns a path into a URI carrying the connection pragmas, so every
// pooled connection enforces foreign keys.
func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite has a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS products (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	brand           TEXT NOT NULL,
	type            TEXT NOT NULL,
	size            TEXT NOT NULL,
	count           INTEGER NOT NULL CHECK (count > 0),
	retailer        TEXT NOT NULL,
	price           REAL NOT NULL,
	price_per_unit  REAL NOT NULL,
	url             TEXT NOT NULL DEFAULT '',
	in_stock        BOOLEAN NOT NULL DEFAULT 1,
	last_fetched_at DATETIME NOT NULL,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE (brand, type, size, retailer)
);

CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
CREATE INDEX IF NOT EXISTS idx_products_size ON products(size);
CREATE INDEX IF NOT EXISTS idx_products_retailer ON products(retailer);

CREATE TABLE IF NOT EXISTS price_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id     INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	price          REAL NOT NULL,
	price_per_unit REAL NOT NULL,
	in_stock       BOOLEAN NOT NULL DEFAULT 1,
	recorded_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_product ON price_history(product_id, recorded_at);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id            TEXT PRIMARY KEY,
	retailer      TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME NOT NULL,
	items_found   INTEGER NOT NULL DEFAULT 0 CHECK (items_found >= 0),
	success       BOOLEAN NOT NULL,
	error_message TEXT,
	duration_ms   INTEGER
);

CREATE INDEX IF NOT EXISTS idx_scrape_logs_retailer ON scrape_logs(retailer, started_at);
CREATE INDEX IF NOT EXISTS idx_scrape_logs_completed ON scrape_logs(completed_at);
`

const sqliteListingColumns = `id, brand, type, size, count, retailer, price, price_per_unit, url, in_stock, last_fetched_at, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l model.ProductListing) (*model.ProductListing, error) {
	if err := validateListing(l); err != nil {
		return nil, err
	}
	now := s.clock()
	fetched := l.LastFetchedAt
	if fetched.IsZero() {
		fetched = now
	}

	row := s.db.QueryRowContext(ctx, `INSERT INTO products (brand, type, size, count, retailer, price, price_per_unit, url, in_stock, last_fetched_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (brand, type, size, retailer) DO UPDATE SET
	count = excluded.count,
	price = excluded.price,
	price_per_unit = excluded.price_per_unit,
	url = excluded.url,
	in_stock = excluded.in_stock,
	last_fetched_at = excluded.last_fetched_at,
	updated_at = excluded.updated_at
RETURNING `+sqliteListingColumns,
		l.Brand, l.Type, l.Size, l.Count, l.Retailer,
		model.RoundPrice(l.Price), model.UnitPrice(l.Price, l.Count),
		l.URL, l.InStock, fetched.UTC(), now, now,
	)
	out, err := scanListing(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert listing %s", l.Key())
	}
	return &out, nil
}

func (s *SQLiteStore) QueryListings(ctx context.Context, filter model.ListingFilter, sort model.ListingSort) ([]model.ProductListing, error) {
	where, args := whereClause(filter, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteListingColumns+` FROM products`+where+orderClause(sort), args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query listings")
	}
	defer rows.Close()

	var out []model.ProductListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) DistinctValues(ctx context.Context, column model.DistinctColumn) ([]string, error) {
	query, err := distinctQuery(column)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct %s", column)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan distinct %s", column)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate distinct %s", column)
	}
	return sortDistinct(column, values), nil
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count listings")
	}
	return n, nil
}

func (s *SQLiteStore) RecordHistory(ctx context.Context, listingID int64, totalPrice, pricePerUnit float64, inStock bool) (*model.PriceHistoryEntry, error) {
	e := model.PriceHistoryEntry{
		ProductID:    listingID,
		Price:        model.RoundPrice(totalPrice),
		PricePerUnit: model.RoundUnitPrice(pricePerUnit),
		InStock:      inStock,
		RecordedAt:   s.clock(),
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO price_history (product_id, price, price_per_unit, in_stock, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.ProductID, e.Price, e.PricePerUnit, e.InStock, e.RecordedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record history for listing %d", listingID)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: history id")
	}
	return &e, nil
}

// AppendHistory inserts history rows in one transaction.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entries []model.PriceHistoryEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append history: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_history (product_id, price, price_per_unit, in_stock, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: append history: prepare")
	}
	defer stmt.Close()

	now := s.clock()
	for _, e := range entries {
		at := e.RecordedAt
		if at.IsZero() {
			at = now
		}
		if _, err := stmt.ExecContext(ctx, e.ProductID, model.RoundPrice(e.Price), model.RoundUnitPrice(e.PricePerUnit), e.InStock, at.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: append history for listing %d", e.ProductID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: append history: commit")
	}
	return len(entries), nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, listingID int64) ([]model.PriceHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, product_id, price, price_per_unit, in_stock, recorded_at FROM price_history WHERE product_id = ? ORDER BY recorded_at ASC, id ASC`, listingID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list history for listing %d", listingID)
	}
	defer rows.Close()

	var out []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Price, &e.PricePerUnit, &e.InStock, &e.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		e.RecordedAt = e.RecordedAt.UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func (s *SQLiteStore) RecordSession(ctx context.Context, sess model.ScrapeSessionLog) error {
	var errMsg sql.NullString
	if sess.ErrorMessage != "" {
		errMsg = sql.NullString{String: sess.ErrorMessage, Valid: true}
	}
	var dur sql.NullInt64
	if sess.DurationMs != nil {
		dur = sql.NullInt64{Int64: *sess.DurationMs, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO scrape_logs (id, retailer, started_at, completed_at, items_found, success, error_message, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Retailer, sess.StartedAt.UTC(), sess.CompletedAt.UTC(),
		sess.ItemsFound, sess.Success, errMsg, dur,
	)
	return eris.Wrapf(err, "sqlite: record session for %s", sess.Retailer)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ScrapeSessionLog, error) {
	query := `SELECT id, retailer, started_at, completed_at, items_found, success, error_message, duration_ms FROM scrape_logs WHERE 1 = 1`
	var args []any
	if filter.Retailer != "" {
		query += ` AND retailer = ?`
		args = append(args, filter.Retailer)
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, sessionLimit(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var out []model.ScrapeSessionLog
	for rows.Next() {
		var sess model.ScrapeSessionLog
		var errMsg sql.NullString
		var dur sql.NullInt64
		if err := rows.Scan(&sess.ID, &sess.Retailer, &sess.StartedAt, &sess.CompletedAt,
			&sess.ItemsFound, &sess.Success, &errMsg, &dur); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess.ErrorMessage = errMsg.String
		if dur.Valid {
			ms := dur.Int64
			sess.DurationMs = &ms
		}
		sess.StartedAt = sess.StartedAt.UTC()
		sess.CompletedAt = sess.CompletedAt.UTC()
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

func (s *SQLiteStore) LastSuccessfulRun(ctx context.Context) (time.Time, bool, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT completed_at FROM scrape_logs WHERE success AND items_found > 0 ORDER BY completed_at DESC LIMIT 1`).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: last successful run")
	}
	return t.UTC(), true, nil
}
