package duck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/malbeclabs/fraudprep/pkg/frame"
)

// ReplaceTable replaces table with the contents of f. Every column is stored
// as VARCHAR and missing values as NULL.
func (d *DB) ReplaceTable(ctx context.Context, table string, f *frame.Frame) error {
	if table == "" {
		return errors.New("table name is required")
	}
	cols := f.Columns()
	if len(cols) == 0 {
		return fmt.Errorf("frame for %s has no columns", table)
	}

	start := time.Now()
	defer func() {
		d.log.Debug("Replaced table", "table", table, "rows", f.Len(), "duration", time.Since(start).String())
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before replacing %s: %w", table, err)
	}

	if f.Len() == 0 {
		defs := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = quoteIdent(c) + " VARCHAR"
		}
		q := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
		if _, err := d.exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create %s: %w", table, err)
		}
		return nil
	}

	// Stage as CSV and bulk load with read_csv.
	tmp, err := os.CreateTemp("", "fraudprep_*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.WriteCSV(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to stage %s: %w", table, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	q := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv(%s, header = true, all_varchar = true)",
		quoteIdent(table), quoteLiteral(tmp.Name()),
	)
	if _, err := d.exec(ctx, q); err != nil {
		return fmt.Errorf("failed to load %s: %w", table, err)
	}
	return nil
}

// ExportParquet copies table to a Parquet file at path.
func (d *DB) ExportParquet(ctx context.Context, table, path string) error {
	q := fmt.Sprintf("COPY (SELECT * FROM %s) TO %s (FORMAT PARQUET)", quoteIdent(table), quoteLiteral(path))
	if _, err := d.exec(ctx, q); err != nil {
		return fmt.Errorf("failed to export %s to parquet: %w", table, err)
	}
	d.log.Debug("Exported parquet", "table", table, "path", path)
	return nil
}
