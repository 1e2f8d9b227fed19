package grid

import (
	"math"
	"sort"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

// Bounds is a query window over a field. Longitude bounds may use either
// convention; they are normalized into the field's before lookup. Times is
// the explicit set of axis steps to visit: an empty set selects nothing.
type Bounds struct {
	LonMin, LonMax     float64
	LatMin, LatMax     float64
	DepthMin, DepthMax float64
	Times              []time.Time
}

// Query returns a cursor over the valid cells inside b, in time, depth,
// latitude, longitude order. Inverted depth bounds or an empty time set
// yield an empty cursor rather than an error. Each call returns a fresh
// cursor, so a query can be walked again by re-issuing it.
func (f *Field) Query(b Bounds) *Cursor {
	c := &Cursor{f: f}
	if b.DepthMin > b.DepthMax || len(b.Times) == 0 {
		return c
	}

	c.times = f.timeIndices(b.Times)
	c.depths = indicesBetween(f.Depths, b.DepthMin, b.DepthMax)
	c.lats = indicesBetween(f.Lats, b.LatMin, b.LatMax)
	c.lons = f.lonIndices(b.LonMin, b.LonMax)
	return c
}

func (f *Field) timeIndices(times []time.Time) []int {
	var out []int
	seen := make(map[int]bool)
	for _, t := range times {
		if i, ok := f.timeIdx[t.UTC().UnixNano()]; ok && !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// lonIndices selects longitude columns for a window that may straddle the
// axis seam. After normalization a window whose min exceeds its max wraps:
// it covers the columns at both ends of the axis, in axis order.
func (f *Field) lonIndices(lonMin, lonMax float64) []int {
	lonMin = domain.NormalizeLongitude(lonMin, f.Convention)
	lonMax = domain.NormalizeLongitude(lonMax, f.Convention)
	if lonMin <= lonMax {
		return indicesBetween(f.Lons, lonMin, lonMax)
	}
	var out []int
	for i, v := range f.Lons {
		if v <= lonMax {
			out = append(out, i)
		}
	}
	for i, v := range f.Lons {
		if v >= lonMin {
			out = append(out, i)
		}
	}
	return out
}

// indicesBetween returns the indices of axis values in [min, max]. The axis
// is sorted ascending, so the result is one contiguous run.
func indicesBetween(axis []float64, min, max float64) []int {
	if min > max {
		return nil
	}
	var out []int
	lo := sort.SearchFloat64s(axis, min)
	for i := lo; i < len(axis) && axis[i] <= max; i++ {
		out = append(out, i)
	}
	return out
}

// Cursor walks the cells a query selected, skipping missing and
// out-of-valid-range values. Usage follows the scanner pattern:
//
//	cur := field.Query(b)
//	for cur.Next() {
//	    s := cur.Sample()
//	    ...
//	}
type Cursor struct {
	f *Field

	times  []int
	depths []int
	lats   []int
	lons   []int

	ti, di, yi, xi int
	started        bool
	done           bool
	cur            domain.GridSample
}

// Next advances to the next valid cell, reporting false when the traversal
// is exhausted.
func (c *Cursor) Next() bool {
	if c.done || len(c.times) == 0 || len(c.depths) == 0 || len(c.lats) == 0 || len(c.lons) == 0 {
		return false
	}
	for {
		if c.started {
			if !c.advance() {
				c.done = true
				return false
			}
		}
		c.started = true

		ti, di, yi, xi := c.times[c.ti], c.depths[c.di], c.lats[c.yi], c.lons[c.xi]
		v := c.f.At(ti, di, yi, xi)
		if math.IsNaN(v) {
			continue
		}
		c.cur = domain.GridSample{
			Lon:    c.f.Lons[xi],
			Lat:    c.f.Lats[yi],
			DepthM: c.f.Depths[di],
			Time:   c.f.Times[ti],
			Value:  v,
		}
		return true
	}
}

// Sample returns the cell the last Next call stopped on.
func (c *Cursor) Sample() domain.GridSample {
	return c.cur
}

func (c *Cursor) advance() bool {
	c.xi++
	if c.xi < len(c.lons) {
		return true
	}
	c.xi = 0
	c.yi++
	if c.yi < len(c.lats) {
		return true
	}
	c.yi = 0
	c.di++
	if c.di < len(c.depths) {
		return true
	}
	c.di = 0
	c.ti++
	return c.ti < len(c.times)
}
