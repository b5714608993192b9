// Package iprange indexes inclusive IP ranges for point lookups.
package iprange

import (
	"fmt"
	"sort"

	"lukechampine.com/uint128"
)

// Range is one row of the IP-to-country reference table. Bounds are
// inclusive.
type Range struct {
	Lower   uint128.Uint128
	Upper   uint128.Uint128
	Country string

	// Attrs holds any other reference columns, keyed by column name.
	Attrs map[string]string
}

func (r Range) Contains(k uint128.Uint128) bool {
	return r.Lower.Cmp(k) <= 0 && k.Cmp(r.Upper) <= 0
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s] %s", r.Lower, r.Upper, r.Country)
}

type MalformedRangeError struct {
	Index int
	Range Range
}

func (e *MalformedRangeError) Error() string {
	return fmt.Sprintf("malformed range at index %d: lower bound %s is greater than upper bound %s", e.Index, e.Range.Lower, e.Range.Upper)
}

type OverlapError struct {
	Prev Range
	Next Range
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping ranges %s and %s", e.Prev, e.Next)
}

type OverlapPolicy int

const (
	// OverlapReject fails the build when any two ranges share a key.
	OverlapReject OverlapPolicy = iota
	// OverlapNearestLower accepts overlaps. Only the range with the greatest
	// lower bound not above the key is considered; of ranges with equal lower
	// bounds the first one in input order is kept.
	OverlapNearestLower
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapReject:
		return "reject"
	case OverlapNearestLower:
		return "nearest-lower"
	}
	return fmt.Sprintf("OverlapPolicy(%d)", int(p))
}

type options struct {
	overlap OverlapPolicy
}

type Option func(*options)

func WithOverlap(p OverlapPolicy) Option {
	return func(o *options) {
		o.overlap = p
	}
}

// Index is an immutable set of ranges sorted by lower bound.
type Index struct {
	ranges []Range
}

// Build copies and sorts ranges into an Index. The input slice is not
// modified.
func Build(ranges []Range, opts ...Option) (*Index, error) {
	o := options{overlap: OverlapReject}
	for _, opt := range opts {
		opt(&o)
	}

	for i, r := range ranges {
		if r.Lower.Cmp(r.Upper) > 0 {
			return nil, &MalformedRangeError{Index: i, Range: r}
		}
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Lower.Cmp(sorted[j].Lower) < 0
	})

	switch o.overlap {
	case OverlapReject:
		for i := 1; i < len(sorted); i++ {
			if sorted[i].Lower.Cmp(sorted[i-1].Upper) <= 0 {
				return nil, &OverlapError{Prev: sorted[i-1], Next: sorted[i]}
			}
		}
	case OverlapNearestLower:
		deduped := sorted[:0]
		for i, r := range sorted {
			if i > 0 && r.Lower.Equals(sorted[i-1].Lower) {
				continue
			}
			deduped = append(deduped, r)
		}
		sorted = deduped
	default:
		return nil, fmt.Errorf("unknown overlap policy: %s", o.overlap)
	}

	return &Index{ranges: sorted}, nil
}

// Find returns the range containing k. It locates the last range whose lower
// bound is <= k and then checks k against that range's upper bound.
func (ix *Index) Find(k uint128.Uint128) (Range, bool) {
	if ix == nil || len(ix.ranges) == 0 {
		return Range{}, false
	}
	i := sort.Search(len(ix.ranges), func(i int) bool {
		return ix.ranges[i].Lower.Cmp(k) > 0
	})
	if i == 0 {
		return Range{}, false
	}
	candidate := ix.ranges[i-1]
	if k.Cmp(candidate.Upper) > 0 {
		return Range{}, false
	}
	return candidate, true
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.ranges)
}

// Ranges returns a copy of the indexed ranges in lower-bound order.
func (ix *Index) Ranges() []Range {
	if ix == nil {
		return nil
	}
	out := make([]Range, len(ix.ranges))
	copy(out, ix.ranges)
	return out
}
