// Package duck persists frames into DuckDB so prepared datasets can be queried
// and exported as Parquet.
package duck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/malbeclabs/fraudprep/pkg/frame"
)

type DB struct {
	log     *slog.Logger
	path    string
	db      *sql.DB
	catalog string

	writeMu sync.Mutex // serializes all write operations
}

// NewDB opens the DuckDB database at path. An empty path opens an in-memory
// database.
func NewDB(ctx context.Context, path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var catalog string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&catalog); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to get current database: %w", err)
	}

	return &DB{
		log:     log,
		path:    path,
		db:      db,
		catalog: catalog,
	}, nil
}

func (d *DB) Catalog() string {
	return d.catalog
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	return d.db.ExecContext(ctx, query, args...)
}

// Count returns the number of rows in table.
func (d *DB) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	if err := d.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Query runs query and collects the result set into a frame. Column values
// keep the driver's Go types; NULL becomes a missing value.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*frame.Frame, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	out, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := out.AppendRow(vals...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
