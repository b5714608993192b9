package resolver_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"github.com/malbeclabs/fraudprep/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func r64(lower, upper uint64, country string) iprange.Range {
	return iprange.Range{Lower: uint128.From64(lower), Upper: uint128.From64(upper), Country: country}
}

func TestFraudPrep_Resolver_Index(t *testing.T) {
	t.Parallel()

	ix, err := iprange.Build([]iprange.Range{r64(0, 99, "A"), r64(100, 199, "B")})
	require.NoError(t, err)
	r := resolver.NewIndex(ix)

	got, ok := r.Resolve(uint128.From64(150))
	require.True(t, ok)
	require.Equal(t, "B", got.Country)

	_, ok = r.Resolve(uint128.From64(250))
	require.False(t, ok)

	got, ok = r.Resolve(uint128.From64(99))
	require.True(t, ok)
	require.Equal(t, "A", got.Country)
}

func TestFraudPrep_Resolver_Exact(t *testing.T) {
	t.Parallel()

	r, err := resolver.NewExact([]iprange.Range{r64(7, 7, "A"), r64(9, 9, "B"), r64(7, 7, "dup")})
	require.NoError(t, err)

	got, ok := r.Resolve(uint128.From64(7))
	require.True(t, ok)
	require.Equal(t, "A", got.Country)

	_, ok = r.Resolve(uint128.From64(8))
	require.False(t, ok)

	_, err = resolver.NewExact([]iprange.Range{r64(1, 2, "A")})
	require.ErrorContains(t, err, "not a single address")
}

func TestFraudPrep_Resolver_Cached_MatchesUnderlying(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	next := resolver.Func(func(k uint128.Uint128) (iprange.Range, bool) {
		calls.Add(1)
		if k.Cmp64(100) < 0 {
			return r64(0, 99, "A"), true
		}
		return iprange.Range{}, false
	})

	c, err := resolver.NewCached(next, 128)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	for range 3 {
		got, ok := c.Resolve(uint128.From64(5))
		require.True(t, ok)
		require.Equal(t, "A", got.Country)

		_, ok = c.Resolve(uint128.From64(500))
		require.False(t, ok)

		c.Wait()
	}

	// The first round misses; later rounds are served from the cache.
	require.Equal(t, int64(2), calls.Load())
}

func TestFraudPrep_Resolver_Cached_HoldsConfiguredEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{name: "single", size: 1},
		{name: "small", size: 100},
		{name: "large", size: 10_000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			next := resolver.Func(func(k uint128.Uint128) (iprange.Range, bool) {
				calls.Add(1)
				return iprange.Range{Lower: k, Upper: k, Country: "A"}, true
			})
			c, err := resolver.NewCached(next, tt.size)
			require.NoError(t, err)
			t.Cleanup(c.Close)

			for i := range tt.size {
				c.Resolve(uint128.From64(uint64(i)))
				c.Wait()
			}
			require.Equal(t, int64(tt.size), calls.Load())

			for i := range tt.size {
				got, ok := c.Resolve(uint128.From64(uint64(i)))
				require.True(t, ok)
				require.Equal(t, uint64(i), got.Lower.Lo)
			}
			hits := int64(tt.size) - (calls.Load() - int64(tt.size))
			require.GreaterOrEqual(t, hits*10, int64(tt.size)*9, "hits=%d of %d", hits, tt.size)
		})
	}
}

func TestFraudPrep_Resolver_Cached_ConcurrentUse(t *testing.T) {
	t.Parallel()

	ix, err := iprange.Build([]iprange.Range{r64(0, 99, "A"), r64(100, 199, "B")})
	require.NoError(t, err)

	c, err := resolver.NewCached(resolver.NewIndex(ix), 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				k := uint64((i + w) % 300)
				got, ok := c.Resolve(uint128.From64(k))
				switch {
				case k < 100:
					assert.True(t, ok)
					assert.Equal(t, "A", got.Country)
				case k < 200:
					assert.True(t, ok)
					assert.Equal(t, "B", got.Country)
				default:
					assert.False(t, ok)
				}
			}
		}()
	}
	wg.Wait()
}

func TestFraudPrep_Resolver_Cached_RequiresNext(t *testing.T) {
	t.Parallel()

	_, err := resolver.NewCached(nil, 10)
	require.Error(t, err)
}
