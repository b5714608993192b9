package prep_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/malbeclabs/fraudprep/pkg/prep"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func mustFrame(t *testing.T, cols []string, rows ...[]any) *frame.Frame {
	t.Helper()
	f, err := frame.New(cols...)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, f.AppendRow(r...))
	}
	return f
}

func column(t *testing.T, f *frame.Frame, name string) []any {
	t.Helper()
	col, err := f.Column(name)
	require.NoError(t, err)
	return col
}

func TestFraudPrep_Prep_LoadData(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}
	fraud := write("fraud.csv", "user_id,ip_address\n1,1.2.3.4\n")
	ip := write("ip.csv", "lower_bound_ip_address,upper_bound_ip_address,country\n0,10,A\n")
	credit := write("credit.csv", "Time,Amount,Class\n0,1.5,0\n1,2.5,1\n")

	ds, err := prep.LoadData(fraud, ip, credit)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Fraud.Len())
	require.Equal(t, 1, ds.IPRanges.Len())
	require.Equal(t, 2, ds.CreditCard.Len())

	_, err = prep.LoadData(fraud, filepath.Join(dir, "nope.csv"), credit)
	require.ErrorContains(t, err, "failed to load ip ranges")
}

func TestFraudPrep_Prep_HandleMissing_Drop(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"a", "b"},
		[]any{1.0, "x"},
		[]any{nil, "y"},
		[]any{3.0, nil},
		[]any{math.NaN(), "z"},
		[]any{5.0, "w"},
	)
	out, err := prep.HandleMissing(f, prep.MissingOptions{})
	require.NoError(t, err)
	require.Equal(t, []any{1.0, 5.0}, column(t, out, "a"))
	require.Equal(t, 5, f.Len(), "input must not be mutated")
}

func TestFraudPrep_Prep_HandleMissing_Fill(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"a", "b"}, []any{nil, "x"}, []any{2.0, nil})
	out, err := prep.HandleMissing(f, prep.MissingOptions{Method: prep.MissingFill, FillValue: "unknown"})
	require.NoError(t, err)
	require.Equal(t, []any{"unknown", 2.0}, column(t, out, "a"))
	require.Equal(t, []any{"x", "unknown"}, column(t, out, "b"))

	_, err = prep.HandleMissing(f, prep.MissingOptions{Method: prep.MissingFill})
	require.Error(t, err)
}

func TestFraudPrep_Prep_HandleMissing_MeanOnlyTouchesNumericColumns(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"num", "text", "ints"},
		[]any{1.0, "x", int64(2)},
		[]any{nil, nil, nil},
		[]any{3.0, "y", int64(4)},
	)
	out, err := prep.HandleMissing(f, prep.MissingOptions{Method: prep.MissingMean})
	require.NoError(t, err)
	require.Equal(t, []any{1.0, 2.0, 3.0}, column(t, out, "num"))
	require.Equal(t, []any{"x", nil, "y"}, column(t, out, "text"))
	require.Equal(t, []any{int64(2), 3.0, int64(4)}, column(t, out, "ints"))
}

func TestFraudPrep_Prep_RemoveDuplicates_KeepsFirstInOrder(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"id", "v"},
		[]any{"1", 1.0},
		[]any{"2", 2.0},
		[]any{"1", 1.0},
		[]any{"1", "1"},
		[]any{"3", nil},
		[]any{"3", nil},
	)
	out := prep.RemoveDuplicates(f)
	require.Equal(t, 4, out.Len())
	require.Equal(t, []any{"1", "2", "1", "3"}, column(t, out, "id"))
	require.Equal(t, []any{1.0, 2.0, "1", nil}, column(t, out, "v"))
}

func TestFraudPrep_Prep_CorrectTypes(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"signup_time", "value", "ip"},
		[]any{"2015-02-24 22:55:49", "34", "732758368.79972"},
		[]any{nil, "abc", "350311387.865908"},
	)
	out, err := prep.CorrectTypes(f, prep.TypeSpec{
		Datetime:   []string{"signup_time"},
		Numeric:    []string{"value"},
		FloatToInt: []string{"ip"},
	})
	require.NoError(t, err)
	require.Equal(t, []any{time.Date(2015, 2, 24, 22, 55, 49, 0, time.UTC), nil}, column(t, out, "signup_time"))
	require.Equal(t, []any{34.0, nil}, column(t, out, "value"))
	require.Equal(t, []any{int64(732758368), int64(350311387)}, column(t, out, "ip"))

	_, err = prep.CorrectTypes(f, prep.TypeSpec{Datetime: []string{"value"}})
	require.ErrorContains(t, err, "failed to parse value row 0")

	_, err = prep.CorrectTypes(f, prep.TypeSpec{FloatToInt: []string{"signup_time"}})
	require.Error(t, err)

	_, err = prep.CorrectTypes(f, prep.TypeSpec{Numeric: []string{"missing"}})
	require.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func TestFraudPrep_Prep_ParseTime_Layouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2015, 4, 18, 2, 47, 11, 0, time.UTC)
	for _, in := range []string{"2015-04-18 02:47:11", "2015-04-18T02:47:11Z", "2015-04-18T02:47:11", "4/18/2015 02:47:11"} {
		got, err := prep.ParseTime(in)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), in)
	}

	_, err := prep.ParseTime("yesterday")
	require.Error(t, err)
	_, err = prep.ParseTime(42)
	require.Error(t, err)
}

func TestFraudPrep_Prep_EngineerFeatures(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"user_id", "purchase_time"},
		// Monday.
		[]any{"22058", time.Date(2015, 4, 20, 2, 47, 11, 0, time.UTC)},
		// Sunday.
		[]any{"333320", "2015-06-07 20:39:50"},
		[]any{"22058", nil},
		[]any{nil, time.Date(2015, 4, 24, 23, 0, 0, 0, time.UTC)},
	)
	out, err := prep.EngineerFeatures(f)
	require.NoError(t, err)

	require.Equal(t, []any{int64(2), int64(20), nil, int64(23)}, column(t, out, "purchase_hour"))
	require.Equal(t, []any{int64(0), int64(6), nil, int64(4)}, column(t, out, "purchase_day_of_week"))
	require.Equal(t, []any{int64(2), int64(1), int64(2), nil}, column(t, out, "user_transaction_count"))
	require.False(t, f.Has("purchase_hour"))
}

func TestFraudPrep_Prep_EngineerFeatures_WithoutPurchaseTime(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"user_id"}, []any{"a"}, []any{"b"}, []any{"a"})
	out, err := prep.EngineerFeatures(f)
	require.NoError(t, err)
	require.Equal(t, []string{"user_id", "user_transaction_count"}, out.Columns())

	_, err = prep.EngineerFeatures(mustFrame(t, []string{"x"}))
	require.ErrorIs(t, err, prep.ErrNoUserID)
}

func toFloats(t *testing.T, col []any) []float64 {
	t.Helper()
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if v == nil {
			continue
		}
		out = append(out, v.(float64))
	}
	return out
}

func TestFraudPrep_Prep_Scale_Standard(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"purchase_value", "age", "const"},
		[]any{34.0, "39", 5.0},
		[]any{16.0, "53", 5.0},
		[]any{15.0, nil, 5.0},
		[]any{44.0, "41", 5.0},
	)
	out, err := prep.Scale(f, []string{"purchase_value", "age", "const"}, prep.StandardScaler{})
	require.NoError(t, err)

	for _, name := range []string{"purchase_value", "age"} {
		mean, std := stat.PopMeanStdDev(toFloats(t, column(t, out, name)), nil)
		require.InDelta(t, 0, mean, 1e-12, name)
		require.InDelta(t, 1, std, 1e-12, name)
	}
	require.Nil(t, column(t, out, "age")[2], "missing stays missing")
	require.Equal(t, []any{0.0, 0.0, 0.0, 0.0}, column(t, out, "const"))
}

func TestFraudPrep_Prep_Scale_MinMax(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"v"}, []any{2.0}, []any{4.0}, []any{6.0})

	out, err := prep.Scale(f, []string{"v"}, prep.MinMaxScaler{})
	require.NoError(t, err)
	require.Equal(t, []any{0.0, 0.5, 1.0}, column(t, out, "v"))

	out, err = prep.Scale(f, []string{"v"}, prep.MinMaxScaler{FeatureMin: -1, FeatureMax: 1})
	require.NoError(t, err)
	require.Equal(t, []any{-1.0, 0.0, 1.0}, column(t, out, "v"))
}

func TestFraudPrep_Prep_Scale_Passthrough(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"v"}, []any{"abc"})

	out, err := prep.Scale(f, nil, prep.StandardScaler{})
	require.NoError(t, err)
	require.Equal(t, f, out)

	out, err = prep.Scale(f, []string{"v"}, nil)
	require.NoError(t, err)
	require.Equal(t, f, out)

	_, err = prep.Scale(f, []string{"v"}, prep.StandardScaler{})
	require.ErrorContains(t, err, "not numeric")
}

func TestFraudPrep_Prep_ParseOptions(t *testing.T) {
	t.Parallel()

	m, err := prep.ParseMissingMethod("mean")
	require.NoError(t, err)
	require.Equal(t, prep.MissingMean, m)
	_, err = prep.ParseMissingMethod("median")
	require.Error(t, err)

	s, err := prep.ParseScaler("minmax")
	require.NoError(t, err)
	require.Equal(t, prep.MinMaxScaler{}, s)
	s, err = prep.ParseScaler("")
	require.NoError(t, err)
	require.Nil(t, s)
	_, err = prep.ParseScaler("robust")
	require.Error(t, err)
}

func TestFraudPrep_Prep_EncodeLabels(t *testing.T) {
	t.Parallel()

	f := mustFrame(t, []string{"source", "browser", "age"},
		[]any{"SEO", "Chrome", int64(39)},
		[]any{"Ads", "Safari", int64(53)},
		[]any{"Direct", nil, int64(39)},
		[]any{"SEO", "Chrome", int64(41)},
	)
	out, err := prep.EncodeLabels(f, []string{"source", "browser"})
	require.NoError(t, err)

	require.Equal(t, []any{int64(2), int64(0), int64(1), int64(2)}, column(t, out, "source"))
	// "Chrome" < "Safari" < "nan".
	require.Equal(t, []any{int64(0), int64(1), int64(2), int64(0)}, column(t, out, "browser"))
	require.Equal(t, []any{int64(39), int64(53), int64(39), int64(41)}, column(t, out, "age"))

	_, err = prep.EncodeLabels(f, []string{"nope"})
	require.ErrorIs(t, err, frame.ErrColumnNotFound)
}
