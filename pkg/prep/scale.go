package prep

import (
	"fmt"

	"github.com/malbeclabs/fraudprep/pkg/frame"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scaler fits on the non-missing values of one column and returns them
// transformed.
type Scaler interface {
	FitTransform(values []float64) []float64
}

// StandardScaler centers on the mean and divides by the population standard
// deviation. A constant column is only centered.
type StandardScaler struct{}

func (StandardScaler) FitTransform(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if std == 0 {
		std = 1
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}

// MinMaxScaler maps values linearly onto [FeatureMin, FeatureMax]. The zero
// value maps onto [0, 1].
type MinMaxScaler struct {
	FeatureMin float64
	FeatureMax float64
}

func (s MinMaxScaler) FitTransform(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := s.FeatureMin, s.FeatureMax
	if lo == 0 && hi == 0 {
		hi = 1
	}
	dataMin, dataMax := floats.Min(values), floats.Max(values)
	span := dataMax - dataMin
	if span == 0 {
		span = 1
	}
	for i, v := range values {
		out[i] = (v-dataMin)/span*(hi-lo) + lo
	}
	return out
}

func ParseScaler(s string) (Scaler, error) {
	switch s {
	case "":
		return nil, nil
	case "standard":
		return StandardScaler{}, nil
	case "minmax":
		return MinMaxScaler{}, nil
	}
	return nil, fmt.Errorf("unknown scaler %q", s)
}

// Scale fits the scaler to each column independently. Missing cells stay
// missing; any other non-numeric cell is an error. With no columns or no
// scaler the frame is returned unchanged.
func Scale(f *frame.Frame, cols []string, s Scaler) (*frame.Frame, error) {
	out := f.Clone()
	if len(cols) == 0 || s == nil {
		return out, nil
	}
	for _, name := range cols {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		var (
			values []float64
			rows   []int
		)
		for i, v := range col {
			if frame.IsMissing(v) {
				continue
			}
			x, ok := frame.Float(v)
			if !ok {
				return nil, fmt.Errorf("column %s row %d value %v is not numeric", name, i, v)
			}
			values = append(values, x)
			rows = append(rows, i)
		}
		scaled := s.FitTransform(values)
		for j, i := range rows {
			col[i] = scaled[j]
		}
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}
