package mmdb

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/malbeclabs/fraudprep/pkg/ipnorm"
	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"github.com/oschwald/geoip2-golang"
	"lukechampine.com/uint128"
)

// Resolver looks keys up in a country or city MMDB. Matches are returned as
// single-address ranges since the reader does not expose the enclosing
// network.
type Resolver struct {
	log *slog.Logger
	db  *geoip2.Reader
}

func NewResolver(log *slog.Logger, db *geoip2.Reader) (*Resolver, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Resolver{log: log, db: db}, nil
}

// Open opens the MMDB at path. The caller closes the returned Resolver.
func Open(log *slog.Logger, path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmdb %s: %w", path, err)
	}
	r, err := NewResolver(log, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Resolver) Close() error {
	return r.db.Close()
}

// Resolve reports the country for k. The country is the English name, or the
// ISO code when the record has no name.
func (r *Resolver) Resolve(k uint128.Uint128) (iprange.Range, bool) {
	addr := ipnorm.Addr(k)
	rec, err := r.db.Country(net.IP(addr.AsSlice()))
	if err != nil {
		r.log.Debug("mmdb: country lookup failed", "ip", addr.String(), "error", err)
		return iprange.Range{}, false
	}

	code := rec.Country.IsoCode
	country := rec.Country.Names["en"]
	if country == "" {
		country = code
	}
	if country == "" {
		return iprange.Range{}, false
	}

	out := iprange.Range{Lower: k, Upper: k, Country: country}
	if code != "" {
		out.Attrs = map[string]string{AttrISOCode: code}
	}
	return out, true
}
