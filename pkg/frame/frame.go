// Package frame is a small column-major table used to pass datasets between
// preparation steps.
//
// Cell values are nil (missing), string, float64, int64, bool, time.Time, or
// any fmt.Stringer.
package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrColumnNotFound = errors.New("column not found")

// TimeLayout is used when formatting time.Time cells.
const TimeLayout = time.DateTime

type Frame struct {
	cols  []string
	index map[string]int
	data  [][]any
	n     int
}

func New(cols ...string) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := f.addEmpty(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FromRecords builds a frame from string records. Empty cells become nil.
func FromRecords(header []string, rows [][]string) (*Frame, error) {
	f, err := New(header...)
	if err != nil {
		return nil, err
	}
	for c := range f.data {
		f.data[c] = make([]any, 0, len(rows))
	}
	for i, rec := range rows {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i, len(rec), len(header))
		}
		for c, cell := range rec {
			if cell == "" {
				f.data[c] = append(f.data[c], nil)
				continue
			}
			f.data[c] = append(f.data[c], cell)
		}
	}
	f.n = len(rows)
	return f, nil
}

func (f *Frame) addEmpty(name string) error {
	if name == "" {
		return errors.New("column name is empty")
	}
	if _, ok := f.index[name]; ok {
		return fmt.Errorf("duplicate column %q", name)
	}
	f.index[name] = len(f.cols)
	f.cols = append(f.cols, name)
	f.data = append(f.data, make([]any, f.n))
	return nil
}

func (f *Frame) Columns() []string {
	return slices.Clone(f.cols)
}

func (f *Frame) Len() int {
	return f.n
}

func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]any, error) {
	c, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return slices.Clone(f.data[c]), nil
}

func (f *Frame) Value(row int, name string) (any, error) {
	c, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	if row < 0 || row >= f.n {
		return nil, fmt.Errorf("row %d out of range [0, %d)", row, f.n)
	}
	return f.data[c][row], nil
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	out := make([]any, len(f.cols))
	for c := range f.cols {
		out[c] = f.data[c][i]
	}
	return out
}

func (f *Frame) AppendRow(vals ...any) error {
	if len(vals) != len(f.cols) {
		return fmt.Errorf("row has %d values, expected %d", len(vals), len(f.cols))
	}
	for c, v := range vals {
		f.data[c] = append(f.data[c], v)
	}
	f.n++
	return nil
}

// AddColumn appends a new column. vals is copied.
func (f *Frame) AddColumn(name string, vals []any) error {
	if len(vals) != f.n {
		return fmt.Errorf("column %q has %d values, expected %d", name, len(vals), f.n)
	}
	if err := f.addEmpty(name); err != nil {
		return err
	}
	copy(f.data[len(f.data)-1], vals)
	return nil
}

// SetColumn replaces an existing column or appends a new one.
func (f *Frame) SetColumn(name string, vals []any) error {
	c, ok := f.index[name]
	if !ok {
		return f.AddColumn(name, vals)
	}
	if len(vals) != f.n {
		return fmt.Errorf("column %q has %d values, expected %d", name, len(vals), f.n)
	}
	f.data[c] = slices.Clone(vals)
	return nil
}

// Select returns a new frame holding only the named columns, in that order.
func (f *Frame) Select(cols ...string) (*Frame, error) {
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	for i, name := range cols {
		c, ok := f.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
		out.data[i] = slices.Clone(f.data[c])
	}
	out.n = f.n
	return out, nil
}

// Take returns a new frame with the given rows, in the given order.
func (f *Frame) Take(rows []int) *Frame {
	out := &Frame{
		cols:  slices.Clone(f.cols),
		index: make(map[string]int, len(f.cols)),
		data:  make([][]any, len(f.cols)),
		n:     len(rows),
	}
	for c, name := range f.cols {
		out.index[name] = c
		col := make([]any, len(rows))
		for i, r := range rows {
			col[i] = f.data[c][r]
		}
		out.data[c] = col
	}
	return out
}

func (f *Frame) Clone() *Frame {
	out := &Frame{
		cols:  slices.Clone(f.cols),
		index: make(map[string]int, len(f.cols)),
		data:  make([][]any, len(f.cols)),
		n:     f.n,
	}
	for c, name := range f.cols {
		out.index[name] = c
		out.data[c] = slices.Clone(f.data[c])
	}
	return out
}

// FormatValue renders a cell the way it is written to CSV. Missing values are
// the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(TimeLayout)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Float reads a cell as a number. Numeric strings are parsed; missing values,
// NaN and anything else report false.
func Float(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case fmt.Stringer:
		p, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// IsMissing reports whether v counts as a missing cell.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// Numeric returns the non-missing values of col as numbers, including numeric
// strings. It reports false when any non-missing value is not a number or
// when col has no values at all. Booleans are not numbers here.
func Numeric(col []any) ([]float64, bool) {
	values := make([]float64, 0, len(col))
	for _, v := range col {
		if IsMissing(v) {
			continue
		}
		if _, ok := v.(bool); ok {
			return nil, false
		}
		x, ok := Float(v)
		if !ok {
			return nil, false
		}
		values = append(values, x)
	}
	return values, len(values) > 0
}
