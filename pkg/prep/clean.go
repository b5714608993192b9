package prep

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/malbeclabs/fraudprep/pkg/frame"
	"gonum.org/v1/gonum/stat"
)

type MissingMethod int

const (
	// MissingDrop removes every row with at least one missing cell.
	MissingDrop MissingMethod = iota
	// MissingFill replaces every missing cell with FillValue.
	MissingFill
	// MissingMean replaces missing cells of numeric columns with the column
	// mean. Other columns are left alone. See frame.Numeric.
	MissingMean
)

func ParseMissingMethod(s string) (MissingMethod, error) {
	switch s {
	case "", "drop":
		return MissingDrop, nil
	case "fill":
		return MissingFill, nil
	case "mean":
		return MissingMean, nil
	}
	return 0, fmt.Errorf("unknown missing value method %q", s)
}

type MissingOptions struct {
	Method    MissingMethod
	FillValue any
}

func HandleMissing(f *frame.Frame, opts MissingOptions) (*frame.Frame, error) {
	switch opts.Method {
	case MissingDrop:
		var keep []int
		for i := 0; i < f.Len(); i++ {
			if !rowHasMissing(f.Row(i)) {
				keep = append(keep, i)
			}
		}
		return f.Take(keep), nil

	case MissingFill:
		if opts.FillValue == nil {
			return nil, errors.New("fill value is required")
		}
		out := f.Clone()
		for _, name := range out.Columns() {
			col, _ := out.Column(name)
			for i, v := range col {
				if frame.IsMissing(v) {
					col[i] = opts.FillValue
				}
			}
			if err := out.SetColumn(name, col); err != nil {
				return nil, err
			}
		}
		return out, nil

	case MissingMean:
		out := f.Clone()
		for _, name := range out.Columns() {
			col, _ := out.Column(name)
			values, ok := frame.Numeric(col)
			if !ok {
				continue
			}
			mean := stat.Mean(values, nil)
			for i, v := range col {
				if frame.IsMissing(v) {
					col[i] = mean
				}
			}
			if err := out.SetColumn(name, col); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown missing value method %d", opts.Method)
}

func rowHasMissing(row []any) bool {
	for _, v := range row {
		if frame.IsMissing(v) {
			return true
		}
	}
	return false
}

// RemoveDuplicates keeps the first occurrence of every distinct row.
func RemoveDuplicates(f *frame.Frame) *frame.Frame {
	seen := make(map[string]struct{}, f.Len())
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		key := rowKey(f.Row(i))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}
	return f.Take(keep)
}

func rowKey(row []any) string {
	var b strings.Builder
	for _, v := range row {
		if frame.IsMissing(v) {
			b.WriteString("\x00nil")
		} else {
			fmt.Fprintf(&b, "\x00%T:%s", v, frame.FormatValue(v))
		}
	}
	return b.String()
}

type TypeSpec struct {
	Datetime   []string
	Numeric    []string
	FloatToInt []string
}

var datetimeLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateOnly,
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// ParseTime accepts time.Time values and the common textual layouts found
// in the source CSVs. Times without a zone are UTC.
func ParseTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized datetime %q", x)
	}
	return time.Time{}, fmt.Errorf("unsupported datetime value %v (%T)", v, v)
}

// CorrectTypes converts columns on a copy of f. Datetime parsing
// fails on any unparseable non-missing value, numeric coercion turns
// unparseable values into missing ones, and float to int truncation fails on
// missing values.
func CorrectTypes(f *frame.Frame, spec TypeSpec) (*frame.Frame, error) {
	out := f.Clone()

	for _, name := range spec.Datetime {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			if frame.IsMissing(v) {
				col[i] = nil
				continue
			}
			t, err := ParseTime(v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s row %d: %w", name, i, err)
			}
			col[i] = t
		}
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
	}

	for _, name := range spec.Numeric {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			if x, ok := frame.Float(v); ok {
				col[i] = x
			} else {
				col[i] = nil
			}
		}
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
	}

	for _, name := range spec.FloatToInt {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range col {
			x, ok := frame.Float(v)
			if !ok {
				return nil, fmt.Errorf("cannot convert %s row %d value %v to int", name, i, v)
			}
			if math.IsInf(x, 0) || math.Abs(x) >= math.MaxInt64 {
				return nil, fmt.Errorf("%s row %d value %v is out of int range", name, i, v)
			}
			col[i] = int64(x)
		}
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
	}

	return out, nil
}
