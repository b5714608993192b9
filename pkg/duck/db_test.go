package duck_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/fraudprep/pkg/duck"
	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *duck.DB {
	t.Helper()
	db, err := duck.NewDB(context.Background(), "", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sample(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New("user_id", "country", "purchase_value")
	require.NoError(t, err)
	require.NoError(t, f.AppendRow("22058", "Japan", 34.5))
	require.NoError(t, f.AppendRow("333320", nil, int64(16)))
	require.NoError(t, f.AppendRow("1359", "United States, \"US\"", 15.0))
	return f
}

func TestFraudPrep_Duck_ReplaceTable_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newDB(t)

	require.NoError(t, db.ReplaceTable(ctx, "fraud", sample(t)))

	n, err := db.Count(ctx, "fraud")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	got, err := db.Query(ctx, `SELECT user_id, country, purchase_value FROM fraud ORDER BY CAST(user_id AS BIGINT)`)
	require.NoError(t, err)
	require.Equal(t, []string{"user_id", "country", "purchase_value"}, got.Columns())
	require.Equal(t, []any{"1359", "United States, \"US\"", "15"}, got.Row(0))
	require.Equal(t, []any{"22058", "Japan", "34.5"}, got.Row(1))
	require.Equal(t, []any{"333320", nil, "16"}, got.Row(2))
}

func TestFraudPrep_Duck_ReplaceTable_Replaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newDB(t)

	require.NoError(t, db.ReplaceTable(ctx, "fraud", sample(t)))

	small, err := frame.New("only")
	require.NoError(t, err)
	require.NoError(t, small.AppendRow("x"))
	require.NoError(t, db.ReplaceTable(ctx, "fraud", small))

	got, err := db.Query(ctx, "SELECT * FROM fraud")
	require.NoError(t, err)
	require.Equal(t, []string{"only"}, got.Columns())
	require.Equal(t, 1, got.Len())
}

func TestFraudPrep_Duck_ReplaceTable_Empty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newDB(t)

	empty, err := frame.New("a", "b")
	require.NoError(t, err)
	require.NoError(t, db.ReplaceTable(ctx, "empty", empty))

	n, err := db.Count(ctx, "empty")
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := db.Query(ctx, "SELECT * FROM empty")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got.Columns())
}

func TestFraudPrep_Duck_ReplaceTable_Errors(t *testing.T) {
	t.Parallel()
	db := newDB(t)

	require.Error(t, db.ReplaceTable(context.Background(), "", sample(t)))

	none, err := frame.New()
	require.NoError(t, err)
	require.ErrorContains(t, db.ReplaceTable(context.Background(), "t", none), "no columns")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, db.ReplaceTable(ctx, "t", sample(t)), context.Canceled)

	_, err = db.Count(context.Background(), "missing")
	require.Error(t, err)
}

func TestFraudPrep_Duck_ExportParquet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newDB(t)

	require.NoError(t, db.ReplaceTable(ctx, "fraud", sample(t)))
	path := filepath.Join(t.TempDir(), "fraud.parquet")
	require.NoError(t, db.ExportParquet(ctx, "fraud", path))

	got, err := db.Query(ctx, "SELECT COUNT(*) AS n FROM read_parquet(?)", path)
	require.NoError(t, err)
	v, err := got.Value(0, "n")
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
}

func TestFraudPrep_Duck_NewDB_File(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fraud.duckdb")

	db, err := duck.NewDB(ctx, path, logger)
	require.NoError(t, err)
	require.NotEmpty(t, db.Catalog())
	require.NoError(t, db.ReplaceTable(ctx, "fraud", sample(t)))
	require.NoError(t, db.Close())

	db, err = duck.NewDB(ctx, path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	n, err := db.Count(ctx, "fraud")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, err = duck.NewDB(ctx, "", nil)
	require.Error(t, err)
}
