package prep

import (
	"sort"

	"github.com/malbeclabs/fraudprep/pkg/frame"
)

// EncodeLabels replaces each listed column with integer codes. Values are
// compared by their string form, missing values as "nan", and codes follow
// the sorted order of the distinct strings.
func EncodeLabels(f *frame.Frame, cols []string) (*frame.Frame, error) {
	out := f.Clone()
	for _, name := range cols {
		col, err := out.Column(name)
		if err != nil {
			return nil, err
		}
		labels := make([]string, len(col))
		distinct := make(map[string]struct{})
		for i, v := range col {
			labels[i] = labelString(v)
			distinct[labels[i]] = struct{}{}
		}
		classes := make([]string, 0, len(distinct))
		for k := range distinct {
			classes = append(classes, k)
		}
		sort.Strings(classes)
		codes := make(map[string]int64, len(classes))
		for i, c := range classes {
			codes[c] = int64(i)
		}
		for i, l := range labels {
			col[i] = codes[l]
		}
		if err := out.SetColumn(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func labelString(v any) string {
	if frame.IsMissing(v) {
		return "nan"
	}
	return frame.FormatValue(v)
}
