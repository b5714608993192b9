// Package ipjoin enriches a transaction table with the reference range that
// owns each transaction's IP address.
package ipjoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/alitto/pond/v2"
	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/malbeclabs/fraudprep/pkg/ipnorm"
	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"github.com/malbeclabs/fraudprep/pkg/resolver"
	"lukechampine.com/uint128"
)

// RowError ties a normalization failure to its transaction row.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

type Report struct {
	Total     int
	Matched   int
	Unmatched int
	Invalid   int

	// InvalidRows lists skipped rows under SkipInvalid, in row order.
	InvalidRows []int
}

type Joiner struct {
	log  *slog.Logger
	cfg  *Config
	pool pond.ResultPool[*chunk]
}

func New(cfg *Config) (*Joiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	j := &Joiner{log: cfg.Logger, cfg: cfg}
	if cfg.Workers > 1 {
		j.pool = pond.NewResultPool[*chunk](cfg.Workers)
	}
	return j, nil
}

// Close stops the worker pool, if any.
func (j *Joiner) Close() {
	if j.pool != nil {
		j.pool.StopAndWait()
	}
}

// Join builds an interval index from the reference table and joins tx against
// it. Neither input is modified.
func (j *Joiner) Join(ctx context.Context, tx, ranges *frame.Frame) (*frame.Frame, *Report, error) {
	rs, err := RangesFromFrame(ranges, j.cfg.Ranges)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read ranges: %w", err)
	}
	ix, err := iprange.Build(rs, iprange.WithOverlap(j.cfg.Overlap))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build range index: %w", err)
	}
	j.log.Debug("Built range index", "ranges", ix.Len(), "overlap", j.cfg.Overlap)

	var attrCols []string
	for _, c := range ranges.Columns() {
		if c != j.cfg.Ranges.Lower && c != j.cfg.Ranges.Upper && c != j.cfg.Ranges.Country {
			attrCols = append(attrCols, c)
		}
	}
	return j.join(ctx, tx, resolver.NewIndex(ix), attrCols)
}

// JoinWith joins tx against an arbitrary resolver. Extra range attributes are
// emitted as columns in sorted name order.
func (j *Joiner) JoinWith(ctx context.Context, tx *frame.Frame, r resolver.Resolver) (*frame.Frame, *Report, error) {
	if r == nil {
		return nil, nil, errors.New("resolver is required")
	}
	return j.join(ctx, tx, r, nil)
}

type outcome uint8

const (
	outcomeUnmatched outcome = iota
	outcomeMatched
	outcomeInvalid
)

type chunk struct {
	start    int
	keys     []uint128.Uint128
	ranges   []iprange.Range
	outcomes []outcome
	// err is the chunk's first invalid row under FailFast.
	err      *RowError
}

func (j *Joiner) join(ctx context.Context, tx *frame.Frame, r resolver.Resolver, attrCols []string) (*frame.Frame, *Report, error) {
	if tx == nil {
		return nil, nil, errors.New("transactions are required")
	}
	ips, err := tx.Column(j.cfg.IPColumn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read ip column: %w", err)
	}

	if j.cfg.CacheSize > 0 {
		cached, err := resolver.NewCached(r, j.cfg.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		defer cached.Close()
		r = cached
	}

	chunks, err := j.resolveAll(ctx, ips, r)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Total: len(ips)}
	var (
		rows   []int
		keys   []uint128.Uint128
		owners []iprange.Range
	)
	for _, c := range chunks {
		for i, o := range c.outcomes {
			switch o {
			case outcomeMatched:
				report.Matched++
				rows = append(rows, c.start+i)
				keys = append(keys, c.keys[i])
				owners = append(owners, c.ranges[i])
			case outcomeUnmatched:
				report.Unmatched++
			case outcomeInvalid:
				report.Invalid++
				report.InvalidRows = append(report.InvalidRows, c.start+i)
			}
		}
	}

	if attrCols == nil {
		attrCols = attrNames(owners)
	}
	out, err := j.assemble(tx, rows, keys, owners, attrCols)
	if err != nil {
		return nil, nil, err
	}

	j.log.Debug("Joined transactions to ranges",
		"rows", report.Total, "matched", report.Matched, "unmatched", report.Unmatched, "invalid", report.Invalid)
	return out, report, nil
}

func (j *Joiner) resolveAll(ctx context.Context, ips []any, r resolver.Resolver) ([]*chunk, error) {
	size := j.cfg.ChunkSize

	if j.pool == nil {
		var chunks []*chunk
		for start := 0; start < len(ips); start += size {
			end := min(start+size, len(ips))
			c, err := j.resolveChunk(ctx, ips[start:end], start, r)
			if err != nil {
				return nil, err
			}
			if c.err != nil {
				return nil, c.err
			}
			chunks = append(chunks, c)
		}
		return chunks, nil
	}

	group := j.pool.NewGroupContext(ctx)
	for start := 0; start < len(ips); start += size {
		start := start
		end := min(start+size, len(ips))
		group.SubmitErr(func() (*chunk, error) {
			return j.resolveChunk(ctx, ips[start:end], start, r)
		})
	}
	chunks, err := group.Wait()
	if err != nil {
		return nil, err
	}
	// Chunks come back in submission order, so the first error is the lowest row.
	for _, c := range chunks {
		if c.err != nil {
			return nil, c.err
		}
	}
	return chunks, nil
}

func (j *Joiner) resolveChunk(ctx context.Context, ips []any, start int, r resolver.Resolver) (*chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &chunk{
		start:    start,
		keys:     make([]uint128.Uint128, len(ips)),
		ranges:   make([]iprange.Range, len(ips)),
		outcomes: make([]outcome, len(ips)),
	}
	for i, v := range ips {
		k, err := ipnorm.Normalize(v)
		if err != nil {
			if j.cfg.InvalidPolicy == FailFast {
				c.err = &RowError{Row: start + i, Err: err}
				return c, nil
			}
			c.outcomes[i] = outcomeInvalid
			continue
		}
		c.keys[i] = k
		if rng, ok := r.Resolve(k); ok {
			c.ranges[i] = rng
			c.outcomes[i] = outcomeMatched
		}
	}
	return c, nil
}

func (j *Joiner) assemble(tx *frame.Frame, rows []int, keys []uint128.Uint128, owners []iprange.Range, attrCols []string) (*frame.Frame, error) {
	added := append([]string{j.cfg.KeyColumn, j.cfg.Ranges.Lower, j.cfg.Ranges.Upper, j.cfg.Ranges.Country}, attrCols...)
	seen := make(map[string]struct{}, len(added))
	for _, name := range added {
		if tx.Has(name) {
			return nil, fmt.Errorf("column %q exists in both transactions and ranges", name)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("duplicate output column %q", name)
		}
		seen[name] = struct{}{}
	}

	out := tx.Take(rows)
	n := len(rows)
	keyCol := make([]any, n)
	lowerCol := make([]any, n)
	upperCol := make([]any, n)
	countryCol := make([]any, n)
	for i := range rows {
		keyCol[i] = keys[i]
		lowerCol[i] = owners[i].Lower
		upperCol[i] = owners[i].Upper
		countryCol[i] = owners[i].Country
	}
	cols := [][]any{keyCol, lowerCol, upperCol, countryCol}
	for _, name := range attrCols {
		col := make([]any, n)
		for i := range rows {
			if v, ok := owners[i].Attrs[name]; ok {
				col[i] = v
			}
		}
		cols = append(cols, col)
	}
	for i, name := range added {
		if err := out.AddColumn(name, cols[i]); err != nil {
			return nil, fmt.Errorf("failed to add column %q: %w", name, err)
		}
	}
	return out, nil
}

func attrNames(owners []iprange.Range) []string {
	set := make(map[string]struct{})
	for _, r := range owners {
		for k := range r.Attrs {
			set[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RangesFromFrame reads reference rows into ranges. Bounds may be numeric or
// address literals; columns other than the bounds and country land in Attrs.
func RangesFromFrame(f *frame.Frame, cols RangeColumns) ([]iprange.Range, error) {
	if f == nil {
		return nil, errors.New("range table is required")
	}
	cols.setDefaults()

	lowers, err := f.Column(cols.Lower)
	if err != nil {
		return nil, err
	}
	uppers, err := f.Column(cols.Upper)
	if err != nil {
		return nil, err
	}
	countries, err := f.Column(cols.Country)
	if err != nil {
		return nil, err
	}

	var attrCols []string
	for _, c := range f.Columns() {
		if !slices.Contains([]string{cols.Lower, cols.Upper, cols.Country}, c) {
			attrCols = append(attrCols, c)
		}
	}

	out := make([]iprange.Range, f.Len())
	for i := range out {
		lower, err := ipnorm.Normalize(lowers[i])
		if err != nil {
			return nil, fmt.Errorf("range row %d lower bound: %w", i, err)
		}
		upper, err := ipnorm.Normalize(uppers[i])
		if err != nil {
			return nil, fmt.Errorf("range row %d upper bound: %w", i, err)
		}
		r := iprange.Range{
			Lower:   lower,
			Upper:   upper,
			Country: frame.FormatValue(countries[i]),
		}
		for _, c := range attrCols {
			v, _ := f.Value(i, c)
			if frame.IsMissing(v) {
				continue
			}
			if r.Attrs == nil {
				r.Attrs = make(map[string]string, len(attrCols))
			}
			r.Attrs[c] = frame.FormatValue(v)
		}
		out[i] = r
	}
	return out, nil
}
