// Package mmdb moves IP range tables in and out of MaxMind DB files. Export
// writes a GeoLite2-Country shaped database from a range table, and Resolver
// answers lookups from one.
package mmdb

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/malbeclabs/fraudprep/pkg/ipnorm"
	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"go4.org/netipx"
	"lukechampine.com/uint128"
)

const (
	DefaultDatabaseType = "GeoLite2-Country"

	// AttrISOCode is the range attribute exported as country.iso_code.
	AttrISOCode = "iso_code"
)

var ipv4Limit = uint128.From64(1 << 32)

type ExportOptions struct {
	DatabaseType string
	Description  string
	// IPVersion is 4 or 6. Zero means 6.
	IPVersion int
}

// Export writes ranges as an MMDB. Each range is split into the CIDR prefixes
// covering it exactly. It returns the number of prefixes inserted.
func Export(w io.Writer, ranges []iprange.Range, opts ExportOptions) (int, error) {
	if opts.DatabaseType == "" {
		opts.DatabaseType = DefaultDatabaseType
	}
	if opts.IPVersion == 0 {
		opts.IPVersion = 6
	}
	if opts.IPVersion != 4 && opts.IPVersion != 6 {
		return 0, fmt.Errorf("invalid ip version %d", opts.IPVersion)
	}

	writerOpts := mmdbwriter.Options{
		DatabaseType:            opts.DatabaseType,
		IPVersion:               opts.IPVersion,
		RecordSize:              24,
		IncludeReservedNetworks: true,
		DisableIPv4Aliasing:     true,
	}
	if opts.Description != "" {
		writerOpts.Description = map[string]string{"en": opts.Description}
	}
	tree, err := mmdbwriter.New(writerOpts)
	if err != nil {
		return 0, fmt.Errorf("failed to create mmdb writer: %w", err)
	}

	inserted := 0
	for i, r := range ranges {
		if r.Lower.Cmp(r.Upper) > 0 {
			return 0, &iprange.MalformedRangeError{Index: i, Range: r}
		}
		v4 := r.Upper.Cmp(ipv4Limit) < 0
		if !v4 && r.Lower.Cmp(ipv4Limit) < 0 {
			return 0, fmt.Errorf("range %d crosses the ipv4 boundary: %s", i, r)
		}
		if !v4 && opts.IPVersion == 4 {
			return 0, fmt.Errorf("range %d is not ipv4: %s", i, r)
		}

		ipr := netipx.IPRangeFrom(ipnorm.Addr(r.Lower), ipnorm.Addr(r.Upper))
		if !ipr.IsValid() {
			return 0, fmt.Errorf("range %d is not a valid ip range: %s", i, r)
		}
		rec := countryRecord(r)
		for _, p := range ipr.Prefixes() {
			if err := tree.Insert(netipx.PrefixIPNet(p), rec); err != nil {
				return 0, fmt.Errorf("failed to insert %s: %w", p, err)
			}
			inserted++
		}
	}

	if _, err := tree.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write mmdb: %w", err)
	}
	return inserted, nil
}

func ExportFile(path string, ranges []iprange.Range, opts ExportOptions) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := Export(f, ranges, opts)
	if err != nil {
		return 0, errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return n, nil
}

func countryRecord(r iprange.Range) mmdbtype.Map {
	country := mmdbtype.Map{}
	if r.Country != "" {
		country["names"] = mmdbtype.Map{"en": mmdbtype.String(r.Country)}
	}
	if code := r.Attrs[AttrISOCode]; code != "" {
		country["iso_code"] = mmdbtype.String(code)
	}
	return mmdbtype.Map{"country": country}
}
