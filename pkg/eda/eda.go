// Package eda computes the exploratory statistics behind the fraud dataset
// charts. It returns plain data; drawing is left to the caller.
package eda

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/malbeclabs/fraudprep/pkg/frame"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const DefaultBins = 30

// Number is a float64 that encodes NaN and infinities as JSON null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

type Summary struct {
	Count  int    `json:"count"`
	Mean   Number `json:"mean"`
	Std    Number `json:"std"`
	Min    Number `json:"min"`
	Q1     Number `json:"q1"`
	Median Number `json:"median"`
	Q3     Number `json:"q3"`
	Max    Number `json:"max"`
}

// Summarize describes values the way a dataframe describe() does: the
// standard deviation is the sample one and quartiles interpolate linearly
// between order statistics.
func Summarize(values []float64) Summary {
	nan := Number(math.NaN())
	s := Summary{Count: len(values), Mean: nan, Std: nan, Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan}
	if len(values) == 0 {
		return s
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	s.Mean = Number(stat.Mean(sorted, nil))
	if len(sorted) > 1 {
		s.Std = Number(stat.StdDev(sorted, nil))
	}
	s.Min = Number(sorted[0])
	s.Max = Number(sorted[len(sorted)-1])
	s.Q1 = Number(quantile(sorted, 0.25))
	s.Median = Number(quantile(sorted, 0.5))
	s.Q3 = Number(quantile(sorted, 0.75))
	return s
}

// quantile interpolates linearly between the two nearest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

type Histogram struct {
	Title  string    `json:"title"`
	Column string    `json:"column"`
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

type Boxplot struct {
	Title        string    `json:"title"`
	Column       string    `json:"column"`
	Q1           Number    `json:"q1"`
	Median       Number    `json:"median"`
	Q3           Number    `json:"q3"`
	LowerWhisker Number    `json:"lower_whisker"`
	UpperWhisker Number    `json:"upper_whisker"`
	Outliers     []float64 `json:"outliers"`
}

type ColumnReport struct {
	Column    string    `json:"column"`
	Summary   Summary   `json:"summary"`
	Histogram Histogram `json:"histogram"`
	Boxplot   Boxplot   `json:"boxplot"`
}

// Univariate computes a histogram and a boxplot for each column. With no
// columns it uses every numeric column of f. bins <= 0 uses DefaultBins.
func Univariate(f *frame.Frame, cols []string, bins int) ([]ColumnReport, error) {
	if bins <= 0 {
		bins = DefaultBins
	}
	if len(cols) == 0 {
		for _, name := range f.Columns() {
			col, _ := f.Column(name)
			if _, ok := frame.Numeric(col); ok {
				cols = append(cols, name)
			}
		}
	}

	reports := make([]ColumnReport, 0, len(cols))
	for _, name := range cols {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		values, ok := frame.Numeric(col)
		if !ok && hasValues(col) {
			return nil, fmt.Errorf("column %s is not numeric", name)
		}
		sorted := slices.Clone(values)
		sort.Float64s(sorted)

		reports = append(reports, ColumnReport{
			Column:    name,
			Summary:   Summarize(sorted),
			Histogram: histogram(name, sorted, bins),
			Boxplot:   boxplot(name, sorted),
		})
	}
	return reports, nil
}

func hasValues(col []any) bool {
	for _, v := range col {
		if !frame.IsMissing(v) {
			return true
		}
	}
	return false
}

// histogram bins sorted values into equal-width bins. The last bin includes
// its upper edge. A constant column is spread over [v-0.5, v+0.5].
func histogram(name string, sorted []float64, bins int) Histogram {
	h := Histogram{Title: "Distribution of " + name, Column: name}
	if len(sorted) == 0 {
		return h
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	h.Edges = floats.Span(make([]float64, bins+1), lo, hi)
	h.Edges[bins] = hi

	dividers := slices.Clone(h.Edges)
	dividers[len(dividers)-1] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	h.Counts = make([]int, len(counts))
	for i, c := range counts {
		h.Counts[i] = int(c)
	}
	return h
}

// boxplot uses 1.5 IQR whiskers: each whisker ends at the most extreme value
// still inside the fence, everything past the fences is an outlier.
func boxplot(name string, sorted []float64) Boxplot {
	nan := Number(math.NaN())
	b := Boxplot{
		Title:        "Boxplot of " + name,
		Column:       name,
		Q1:           nan,
		Median:       nan,
		Q3:           nan,
		LowerWhisker: nan,
		UpperWhisker: nan,
	}
	if len(sorted) == 0 {
		return b
	}
	q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
	iqr := q3 - q1
	lowFence, highFence := q1-1.5*iqr, q3+1.5*iqr

	b.Q1 = Number(q1)
	b.Median = Number(quantile(sorted, 0.5))
	b.Q3 = Number(q3)
	b.LowerWhisker = Number(q1)
	b.UpperWhisker = Number(q3)
	for _, v := range sorted {
		if v >= lowFence {
			b.LowerWhisker = Number(math.Min(v, q1))
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] <= highFence {
			b.UpperWhisker = Number(math.Max(sorted[i], q3))
			break
		}
	}
	for _, v := range sorted {
		if v < lowFence || v > highFence {
			b.Outliers = append(b.Outliers, v)
		}
	}
	return b
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Scatter struct {
	Title       string  `json:"title"`
	X           string  `json:"x"`
	Y           string  `json:"y"`
	Points      []Point `json:"points"`
	Correlation Number  `json:"correlation"`
}

// CorrelationText is the one-line correlation report printed next to the
// scatterplot.
func (s *Scatter) CorrelationText() string {
	return fmt.Sprintf("Correlation between %s and %s: %v", s.X, s.Y, float64(s.Correlation))
}

// Bivariate pairs the rows where both x and y are numeric and computes their
// Pearson correlation. The correlation is NaN with fewer than two pairs or
// when either side is constant.
func Bivariate(f *frame.Frame, x, y string) (*Scatter, error) {
	if x == "" || y == "" {
		return nil, errors.New("x and y columns are required")
	}
	xs, err := f.Column(x)
	if err != nil {
		return nil, err
	}
	ys, err := f.Column(y)
	if err != nil {
		return nil, err
	}

	s := &Scatter{Title: fmt.Sprintf("Scatterplot of %s vs %s", x, y), X: x, Y: y}
	var xv, yv []float64
	for i := range xs {
		if isBool(xs[i]) || isBool(ys[i]) {
			continue
		}
		a, okA := frame.Float(xs[i])
		b, okB := frame.Float(ys[i])
		if !okA || !okB {
			continue
		}
		s.Points = append(s.Points, Point{X: a, Y: b})
		xv = append(xv, a)
		yv = append(yv, b)
	}

	s.Correlation = Number(math.NaN())
	if len(xv) >= 2 && !constant(xv) && !constant(yv) {
		s.Correlation = Number(stat.Correlation(xv, yv, nil))
	}
	return s, nil
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func constant(values []float64) bool {
	return floats.Min(values) == floats.Max(values)
}
