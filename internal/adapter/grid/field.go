// Package grid indexes a scalar field on longitude, latitude, depth, and
// time axes and answers windowed range queries over it. The backing array is
// dense; missing cells hold NaN.
package grid

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"

	"github.com/bightlab/matchup/internal/adapter/interp"
	"github.com/bightlab/matchup/internal/domain"
)

// ValidRange masks values outside a physical range (e.g., negative
// chlorophyll retrievals) as missing.
type ValidRange struct {
	Min float64
	Max float64
}

// Field is a dense 4-D scalar field with shape [time][depth][lat][lon].
// Axes are strictly increasing; longitudes follow the recorded convention.
type Field struct {
	Lons       []float64
	Lats       []float64
	Depths     []float64
	Times      []time.Time
	Convention domain.LonConvention
	Valid      *ValidRange // Optional; nil keeps all values.

	data    *sparse.DenseArray
	timeIdx map[int64]int // UnixNano -> time axis index.
}

// New allocates a field over the given axes with every cell missing.
func New(lons, lats, depths []float64, times []time.Time, conv domain.LonConvention) (*Field, error) {
	if len(lons) == 0 || len(lats) == 0 || len(depths) == 0 || len(times) == 0 {
		return nil, fmt.Errorf("grid: empty axis (%d lon, %d lat, %d depth, %d time)",
			len(lons), len(lats), len(depths), len(times))
	}
	if err := checkIncreasing("longitude", lons); err != nil {
		return nil, err
	}
	if err := checkIncreasing("latitude", lats); err != nil {
		return nil, err
	}
	if err := checkIncreasing("depth", depths); err != nil {
		return nil, err
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("grid: time axis not strictly increasing at index %d", i)
		}
	}

	f := &Field{
		Lons:       lons,
		Lats:       lats,
		Depths:     depths,
		Times:      times,
		Convention: conv,
		data:       sparse.ZerosDense(len(times), len(depths), len(lats), len(lons)),
		timeIdx:    make(map[int64]int, len(times)),
	}
	for i := range f.data.Elements {
		f.data.Elements[i] = math.NaN()
	}
	for i, t := range times {
		f.timeIdx[t.UTC().UnixNano()] = i
	}
	return f, nil
}

func checkIncreasing(name string, axis []float64) error {
	for i := 1; i < len(axis); i++ {
		if axis[i] <= axis[i-1] {
			return fmt.Errorf("grid: %s axis not strictly increasing at index %d", name, i)
		}
	}
	return nil
}

// FromSamples builds a field from a flattened sample table, deriving each
// axis from the distinct coordinates present. Cells not covered by any
// sample stay missing; duplicate coordinates keep the last value.
func FromSamples(samples []domain.GridSample, conv domain.LonConvention) (*Field, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("grid: no samples")
	}

	lonSet := make(map[float64]bool)
	latSet := make(map[float64]bool)
	depthSet := make(map[float64]bool)
	timeSet := make(map[int64]time.Time)
	for _, s := range samples {
		if math.IsNaN(s.Lon) || math.IsNaN(s.Lat) || math.IsNaN(s.DepthM) || s.Time.IsZero() {
			continue
		}
		lonSet[s.Lon] = true
		latSet[s.Lat] = true
		depthSet[s.DepthM] = true
		timeSet[s.Time.UTC().UnixNano()] = s.Time.UTC()
	}

	lons := sortedKeys(lonSet)
	lats := sortedKeys(latSet)
	depths := sortedKeys(depthSet)

	nanos := make([]int64, 0, len(timeSet))
	for n := range timeSet {
		nanos = append(nanos, n)
	}
	sort.Slice(nanos, func(i, j int) bool { return nanos[i] < nanos[j] })
	times := make([]time.Time, len(nanos))
	for i, n := range nanos {
		times[i] = timeSet[n]
	}

	f, err := New(lons, lats, depths, times, conv)
	if err != nil {
		return nil, err
	}

	lonIdx := indexOf(lons)
	latIdx := indexOf(lats)
	depthIdx := indexOf(depths)
	for _, s := range samples {
		if math.IsNaN(s.Lon) || math.IsNaN(s.Lat) || math.IsNaN(s.DepthM) || s.Time.IsZero() {
			continue
		}
		f.data.Set(s.Value,
			f.timeIdx[s.Time.UTC().UnixNano()],
			depthIdx[s.DepthM],
			latIdx[s.Lat],
			lonIdx[s.Lon])
	}
	return f, nil
}

func sortedKeys(set map[float64]bool) []float64 {
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func indexOf(axis []float64) map[float64]int {
	m := make(map[float64]int, len(axis))
	for i, v := range axis {
		m[v] = i
	}
	return m
}

// Shape returns the axis lengths as (time, depth, lat, lon).
func (f *Field) Shape() (int, int, int, int) {
	return len(f.Times), len(f.Depths), len(f.Lats), len(f.Lons)
}

// Set stores a value at the given axis indices.
func (f *Field) Set(v float64, ti, di, yi, xi int) {
	f.data.Set(v, ti, di, yi, xi)
}

// At returns the value at the given axis indices with the valid range
// applied: out-of-range values read as NaN, never as zero.
func (f *Field) At(ti, di, yi, xi int) float64 {
	v := f.data.Get(ti, di, yi, xi)
	if f.Valid != nil && !math.IsNaN(v) && (v < f.Valid.Min || v > f.Valid.Max) {
		return math.NaN()
	}
	return v
}

// SubsetByYears keeps only time steps whose calendar year is in the set.
// When more than 24 steps match, every 12th matched step is kept starting
// from the first, which reduces a dense monthly axis to one step per year;
// sparser selections are kept whole.
func (f *Field) SubsetByYears(years ...int) *Field {
	want := make(map[int]bool, len(years))
	for _, y := range years {
		want[y] = true
	}

	var matched []int
	for i, t := range f.Times {
		if want[t.UTC().Year()] {
			matched = append(matched, i)
		}
	}
	if len(matched) > 24 {
		var kept []int
		for i := 0; i < len(matched); i += 12 {
			kept = append(kept, matched[i])
		}
		matched = kept
	}

	sub := &Field{
		Lons:       f.Lons,
		Lats:       f.Lats,
		Depths:     f.Depths,
		Times:      make([]time.Time, len(matched)),
		Convention: f.Convention,
		Valid:      f.Valid,
		data:       sparse.ZerosDense(len(matched), len(f.Depths), len(f.Lats), len(f.Lons)),
		timeIdx:    make(map[int64]int, len(matched)),
	}
	for i := range sub.data.Elements {
		sub.data.Elements[i] = math.NaN()
	}
	for newTi, oldTi := range matched {
		t := f.Times[oldTi]
		sub.Times[newTi] = t
		sub.timeIdx[t.UTC().UnixNano()] = newTi
		for di := range f.Depths {
			for yi := range f.Lats {
				for xi := range f.Lons {
					sub.data.Set(f.data.Get(oldTi, di, yi, xi), newTi, di, yi, xi)
				}
			}
		}
	}
	return sub
}

// TimesBetween returns the axis steps within [t0, t1] inclusive, for
// building query time sets.
func (f *Field) TimesBetween(t0, t1 time.Time) []time.Time {
	var out []time.Time
	for _, t := range f.Times {
		if !t.Before(t0) && !t.After(t1) {
			out = append(out, t)
		}
	}
	return out
}

// Slice extracts the lon/lat plane nearest to t and depthM as a 2-D grid
// for interpolation. The plane carries masked cells as NaN.
func (f *Field) Slice(t time.Time, depthM float64) (*interp.Grid2D, error) {
	if len(f.Times) == 0 {
		return nil, fmt.Errorf("grid: field has no time steps")
	}

	ti := 0
	best := math.MaxFloat64
	for i, ft := range f.Times {
		d := math.Abs(ft.Sub(t).Seconds())
		if d < best {
			best = d
			ti = i
		}
	}
	di := nearestIndex(f.Depths, depthM)

	values := make([][]float64, len(f.Lats))
	for yi := range f.Lats {
		row := make([]float64, len(f.Lons))
		for xi := range f.Lons {
			row[xi] = f.At(ti, di, yi, xi)
		}
		values[yi] = row
	}
	return &interp.Grid2D{X: f.Lons, Y: f.Lats, Values: values}, nil
}

// nearestIndex finds the index of the axis value closest to target.
func nearestIndex(axis []float64, target float64) int {
	left, right := 0, len(axis)-1
	for left < right {
		mid := (left + right) / 2
		if axis[mid] < target {
			left = mid + 1
		} else {
			right = mid
		}
	}
	if left > 0 && math.Abs(axis[left-1]-target) < math.Abs(axis[left]-target) {
		return left - 1
	}
	return left
}
