package ipjoin

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/fraudprep/pkg/iprange"
)

const (
	DefaultIPColumn      = "ip_address"
	DefaultKeyColumn     = "ip_int"
	DefaultLowerColumn   = "lower_bound_ip_address"
	DefaultUpperColumn   = "upper_bound_ip_address"
	DefaultCountryColumn = "country"

	defaultChunkSize = 4096
)

type InvalidPolicy int

const (
	// FailFast aborts the join on the first address that does not normalize.
	FailFast InvalidPolicy = iota
	// SkipInvalid drops rows whose address does not normalize and lists them
	// in the Report.
	SkipInvalid
)

func (p InvalidPolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case SkipInvalid:
		return "skip-invalid"
	}
	return fmt.Sprintf("InvalidPolicy(%d)", int(p))
}

// RangeColumns names the columns of the reference table.
type RangeColumns struct {
	Lower   string
	Upper   string
	Country string
}

func (c *RangeColumns) setDefaults() {
	if c.Lower == "" {
		c.Lower = DefaultLowerColumn
	}
	if c.Upper == "" {
		c.Upper = DefaultUpperColumn
	}
	if c.Country == "" {
		c.Country = DefaultCountryColumn
	}
}

type Config struct {
	Logger *slog.Logger

	IPColumn  string
	KeyColumn string
	Ranges    RangeColumns

	InvalidPolicy InvalidPolicy
	Overlap       iprange.OverlapPolicy

	// Workers > 1 resolves chunks of rows concurrently.
	Workers   int
	ChunkSize int

	// CacheSize > 0 puts a cache of that many entries in front of the index.
	CacheSize int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.IPColumn == "" {
		c.IPColumn = DefaultIPColumn
	}
	if c.KeyColumn == "" {
		c.KeyColumn = DefaultKeyColumn
	}
	c.Ranges.setDefaults()
	if c.InvalidPolicy != FailFast && c.InvalidPolicy != SkipInvalid {
		return fmt.Errorf("unknown invalid policy: %s", c.InvalidPolicy)
	}
	if c.Overlap != iprange.OverlapReject && c.Overlap != iprange.OverlapNearestLower {
		return fmt.Errorf("unknown overlap policy: %s", c.Overlap)
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.ChunkSize < 0 {
		return errors.New("chunk size must not be negative")
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.CacheSize < 0 {
		return errors.New("cache size must not be negative")
	}
	return nil
}
