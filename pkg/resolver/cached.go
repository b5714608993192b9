package resolver

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"lukechampine.com/uint128"
)

const DefaultCacheSize = 100_000

type cacheEntry struct {
	rng iprange.Range
	ok  bool
}

// Cached memoizes another resolver. Misses are cached too, since transaction
// tables tend to repeat the same unmatched addresses.
type Cached struct {
	next  Resolver
	cache *ristretto.Cache
}

// NewCached wraps next with a cache holding up to size entries. A size <= 0
// uses DefaultCacheSize.
func NewCached(next Resolver, size int) (*Cached, error) {
	if next == nil {
		return nil, errors.New("next resolver is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Resolve(k uint128.Uint128) (iprange.Range, bool) {
	key := cacheKey(k)
	if val, ok := c.cache.Get(key); ok {
		e := val.(cacheEntry)
		return e.rng, e.ok
	}
	rng, ok := c.next.Resolve(k)
	c.cache.Set(key, cacheEntry{rng: rng, ok: ok}, 1)
	return rng, ok
}

// Wait blocks until buffered cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() {
	c.cache.Close()
}

func cacheKey(k uint128.Uint128) string {
	var b [16]byte
	k.PutBytesBE(b[:])
	return string(b[:])
}
