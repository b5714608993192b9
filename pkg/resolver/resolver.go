// Package resolver maps normalized IP keys to the reference range that owns
// them. The batch join only depends on the Resolver interface so lookup
// strategies can be swapped without touching it.
package resolver

import (
	"fmt"

	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"lukechampine.com/uint128"
)

// Resolver returns the range owning k, if any. Implementations must be safe
// for concurrent use.
type Resolver interface {
	Resolve(k uint128.Uint128) (iprange.Range, bool)
}

// Func adapts a plain function to a Resolver.
type Func func(k uint128.Uint128) (iprange.Range, bool)

func (f Func) Resolve(k uint128.Uint128) (iprange.Range, bool) {
	return f(k)
}

type indexResolver struct {
	ix *iprange.Index
}

// NewIndex resolves through an interval index.
func NewIndex(ix *iprange.Index) Resolver {
	return &indexResolver{ix: ix}
}

func (r *indexResolver) Resolve(k uint128.Uint128) (iprange.Range, bool) {
	return r.ix.Find(k)
}

type exactResolver struct {
	points map[uint128.Uint128]iprange.Range
}

// NewExact builds a hash lookup over point ranges (Lower == Upper). The first
// range for a given key wins.
func NewExact(ranges []iprange.Range) (Resolver, error) {
	points := make(map[uint128.Uint128]iprange.Range, len(ranges))
	for i, r := range ranges {
		if !r.Lower.Equals(r.Upper) {
			return nil, fmt.Errorf("range at index %d is not a single address: %s", i, r)
		}
		if _, ok := points[r.Lower]; ok {
			continue
		}
		points[r.Lower] = r
	}
	return &exactResolver{points: points}, nil
}

func (r *exactResolver) Resolve(k uint128.Uint128) (iprange.Range, bool) {
	rng, ok := r.points[k]
	return rng, ok
}
