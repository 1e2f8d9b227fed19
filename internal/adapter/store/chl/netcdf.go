// Package chl extracts gridded chlorophyll fields from NetCDF model and
// satellite products and persists the flattened sample tables the pipeline
// passes between stages.
package chl

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/bightlab/matchup/internal/adapter/grid"
	"github.com/bightlab/matchup/internal/domain"
)

// VarConfig names the coordinate and value variables of a product file and
// how its time axis is encoded. Nothing is inferred from the file beyond
// these names.
type VarConfig struct {
	LonVar   string
	LatVar   string
	DepthVar string // Empty for surface-only products.
	TimeVar  string
	ValueVar string

	// TimeUnits decodes the raw time axis, e.g. "days since 2000-01-01" or
	// "seconds since 1970-01-01 00:00:00".
	TimeUnits string
}

// DefaultConfig returns the variable names used by the project's regional
// chlorophyll products.
func DefaultConfig() VarConfig {
	return VarConfig{
		LonVar:    "longitude",
		LatVar:    "latitude",
		DepthVar:  "depth",
		TimeVar:   "time",
		ValueVar:  "chlor_a",
		TimeUnits: "days since 2000-01-01",
	}
}

// Window bounds an extraction in space and time. Zero time bounds leave that
// side open. Longitude bounds may use either convention; they are normalized
// into the file's convention before use.
type Window struct {
	LonMin, LonMax     float64
	LatMin, LatMax     float64
	DepthMin, DepthMax float64
	TimeMin, TimeMax   time.Time
}

// OpenWindow returns a window that keeps every cell.
func OpenWindow() Window {
	inf := math.Inf(1)
	return Window{
		LonMin: -inf, LonMax: inf,
		LatMin: -inf, LatMax: inf,
		DepthMin: -inf, DepthMax: inf,
	}
}

// Extract reads the value variable of a NetCDF product inside the window and
// returns one sample per kept cell. Fill cells, NaN cells, and cells outside
// valid (when non-nil) are dropped. Coordinates are returned exactly as the
// file stores them.
func Extract(path string, cfg VarConfig, win Window, valid *grid.ValidRange) ([]domain.GridSample, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer nc.Close()

	lons, err := readAxis(nc, cfg.LonVar)
	if err != nil {
		return nil, err
	}
	lats, err := readAxis(nc, cfg.LatVar)
	if err != nil {
		return nil, err
	}
	hasDepth := cfg.DepthVar != ""
	depths := []float64{0}
	if hasDepth {
		if depths, err = readAxis(nc, cfg.DepthVar); err != nil {
			return nil, err
		}
	}
	rawTimes, err := readAxis(nc, cfg.TimeVar)
	if err != nil {
		return nil, err
	}
	times, err := decodeTimes(rawTimes, cfg.TimeUnits)
	if err != nil {
		return nil, err
	}

	// Normalize the longitude window into the file's convention. A window
	// that straddles the convention seam falls back to the full axis and is
	// filtered per cell below.
	conv := lonConvention(lons)
	lonMin, lonMax := win.LonMin, win.LonMax
	if !math.IsInf(lonMin, 0) {
		lonMin = domain.NormalizeLongitude(lonMin, conv)
	}
	if !math.IsInf(lonMax, 0) {
		lonMax = domain.NormalizeLongitude(lonMax, conv)
	}
	wrapped := lonMin > lonMax

	x0, nx := axisWindow(lons, lonMin, lonMax)
	if wrapped {
		x0, nx = 0, len(lons)
	}
	y0, ny := axisWindow(lats, win.LatMin, win.LatMax)
	d0, nd := 0, 1
	if hasDepth {
		d0, nd = axisWindow(depths, win.DepthMin, win.DepthMax)
	}
	t0, nt := timeWindow(times, win.TimeMin, win.TimeMax)
	if nx == 0 || ny == 0 || nd == 0 || nt == 0 {
		return nil, nil
	}

	vv, err := nc.Var(cfg.ValueVar)
	if err != nil {
		return nil, fmt.Errorf("failed to get variable %s: %w", cfg.ValueVar, err)
	}
	if err := checkDims(vv, cfg.ValueVar, hasDepth, len(times), len(depths), len(lats), len(lons)); err != nil {
		return nil, err
	}

	var start, count []uint64
	if hasDepth {
		//nolint:gosec // G115: safe int to uint64 conversion for NetCDF indices.
		start = []uint64{uint64(t0), uint64(d0), uint64(y0), uint64(x0)}
		//nolint:gosec // G115: safe int to uint64 conversion for NetCDF dimensions.
		count = []uint64{uint64(nt), uint64(nd), uint64(ny), uint64(nx)}
	} else {
		//nolint:gosec // G115: safe int to uint64 conversion for NetCDF indices.
		start = []uint64{uint64(t0), uint64(y0), uint64(x0)}
		//nolint:gosec // G115: safe int to uint64 conversion for NetCDF dimensions.
		count = []uint64{uint64(nt), uint64(ny), uint64(nx)}
	}
	flat, err := readValuesSubset(vv, start, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.ValueVar, err)
	}
	// The fill attribute is stored in packed units; transform it the same
	// way the data was unpacked before comparing.
	fill, hasFill := getFillValue(vv)
	if hasFill {
		if scale, ok := floatAttr(vv, "scale_factor"); ok && scale != 0 {
			fill *= scale
		}
		if offset, ok := floatAttr(vv, "add_offset"); ok && offset != 0 {
			fill += offset
		}
	}

	var out []domain.GridSample
	for ti := 0; ti < nt; ti++ {
		t := times[t0+ti]
		if !inTimeWindow(t, win.TimeMin, win.TimeMax) {
			continue
		}
		for di := 0; di < nd; di++ {
			depth := depths[d0+di]
			if hasDepth && (depth < win.DepthMin || depth > win.DepthMax) {
				continue
			}
			for yi := 0; yi < ny; yi++ {
				lat := lats[y0+yi]
				if lat < win.LatMin || lat > win.LatMax {
					continue
				}
				for xi := 0; xi < nx; xi++ {
					lon := lons[x0+xi]
					if !lonInWindow(lon, lonMin, lonMax, wrapped) {
						continue
					}
					v := flat[((ti*nd+di)*ny+yi)*nx+xi]
					if math.IsNaN(v) {
						continue
					}
					if hasFill && v == fill {
						continue
					}
					if valid != nil && (v < valid.Min || v > valid.Max) {
						continue
					}
					out = append(out, domain.GridSample{
						Lon:    lon,
						Lat:    lat,
						DepthM: depth,
						Time:   t,
						Value:  v,
					})
				}
			}
		}
	}
	return out, nil
}

// readAxis reads a 1D coordinate variable as float64.
func readAxis(nc netcdf.Dataset, name string) ([]float64, error) {
	v, err := nc.Var(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get variable %s: %w", name, err)
	}
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions of %s: %w", name, err)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable %s, got %dD", name, len(dims))
	}
	length, err := dims[0].Len()
	if err != nil {
		return nil, err
	}
	data := make([]float64, length)
	if err := v.ReadFloat64s(data); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// checkDims verifies the value variable's dimension lengths follow the
// (time, depth, lat, lon) order, depth omitted for surface products.
func checkDims(v netcdf.Var, name string, hasDepth bool, nt, nd, ny, nx int) error {
	dims, err := v.Dims()
	if err != nil {
		return fmt.Errorf("failed to get dimensions of %s: %w", name, err)
	}
	want := []int{nt, ny, nx}
	if hasDepth {
		want = []int{nt, nd, ny, nx}
	}
	if len(dims) != len(want) {
		return fmt.Errorf("expected %dD variable %s, got %dD", len(want), name, len(dims))
	}
	for i, w := range want {
		n, err := dims[i].Len()
		if err != nil {
			return fmt.Errorf("failed to get dim %d length of %s: %w", i, name, err)
		}
		if n != uint64(w) {
			return fmt.Errorf("dimension mismatch for %s: dim %d is %d, expected %d", name, i, n, w)
		}
	}
	return nil
}

// readValuesSubset reads a hyperslab of the value variable as flat float64
// data. Supports float64, float32, int32, and int16 types, with optional
// scale_factor.
func readValuesSubset(v netcdf.Var, start, count []uint64) ([]float64, error) {
	varType, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get variable type: %w", err)
	}

	totalSize := 1
	for _, c := range count {
		totalSize *= int(c)
	}

	var flatData []float64
	switch varType {
	case netcdf.DOUBLE:
		flatData = make([]float64, totalSize)
		if err := v.ReadFloat64Slice(flatData, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float64: %w", err)
		}
	case netcdf.FLOAT:
		float32Data := make([]float32, totalSize)
		if err := v.ReadFloat32Slice(float32Data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float32: %w", err)
		}
		flatData = make([]float64, totalSize)
		for i, val := range float32Data {
			flatData[i] = float64(val)
		}
	case netcdf.SHORT:
		int16Data := make([]int16, totalSize)
		if err := v.ReadInt16Slice(int16Data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int16: %w", err)
		}
		flatData = make([]float64, totalSize)
		for i, val := range int16Data {
			flatData[i] = float64(val)
		}
	case netcdf.INT:
		int32Data := make([]int32, totalSize)
		if err := v.ReadInt32Slice(int32Data, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int32: %w", err)
		}
		flatData = make([]float64, totalSize)
		for i, val := range int32Data {
			flatData[i] = float64(val)
		}
	case netcdf.BYTE, netcdf.UBYTE, netcdf.CHAR, netcdf.USHORT, netcdf.UINT, netcdf.INT64, netcdf.UINT64, netcdf.STRING:
		return nil, fmt.Errorf("unsupported data type: %v (expected DOUBLE, FLOAT, INT, or SHORT)", varType)
	}

	if scale, ok := floatAttr(v, "scale_factor"); ok && scale != 0 {
		for i := range flatData {
			flatData[i] *= scale
		}
	}
	if offset, ok := floatAttr(v, "add_offset"); ok && offset != 0 {
		for i := range flatData {
			flatData[i] += offset
		}
	}
	return flatData, nil
}

// getFillValue returns the _FillValue or missing_value attribute if present
// as float64.
func getFillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		if val, ok := floatAttr(v, name); ok {
			return val, true
		}
	}
	return 0, false
}

// floatAttr reads a scalar numeric attribute, trying float64, float32, and
// int32 in turn.
func floatAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if a == (netcdf.Attr{}) {
		return 0, false
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufInt := make([]int32, 1)
	if err := a.ReadInt32s(bufInt); err == nil {
		return float64(bufInt[0]), true
	}
	return 0, false
}

// axisWindow returns the contiguous index run [start, start+count) of axis
// cells inside [lo, hi]. The axis may ascend or descend.
func axisWindow(axis []float64, lo, hi float64) (start, count int) {
	first, last := -1, -1
	for i, v := range axis {
		if v >= lo && v <= hi {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0
	}
	return first, last - first + 1
}

// timeWindow is axisWindow for the decoded time axis; zero bounds are open.
func timeWindow(times []time.Time, lo, hi time.Time) (start, count int) {
	first, last := -1, -1
	for i, t := range times {
		if inTimeWindow(t, lo, hi) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0
	}
	return first, last - first + 1
}

func inTimeWindow(t, lo, hi time.Time) bool {
	if !lo.IsZero() && t.Before(lo) {
		return false
	}
	if !hi.IsZero() && t.After(hi) {
		return false
	}
	return true
}

// lonInWindow checks a longitude against normalized bounds; a wrapped window
// keeps the two runs on either side of the convention seam.
func lonInWindow(lon, lonMin, lonMax float64, wrapped bool) bool {
	if wrapped {
		return lon >= lonMin || lon <= lonMax
	}
	return lon >= lonMin && lon <= lonMax
}

// lonConvention detects the convention of a longitude axis.
func lonConvention(lons []float64) domain.LonConvention {
	for _, v := range lons {
		if v > 180 {
			return domain.LonUnsigned
		}
		if v < 0 {
			return domain.LonSigned
		}
	}
	return domain.LonSigned
}

// decodeTimes converts a raw time axis using a CF-style units string such as
// "days since 2000-01-01" or "seconds since 1970-01-01 00:00:00".
func decodeTimes(raw []float64, units string) ([]time.Time, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || !strings.EqualFold(fields[1], "since") {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	var secs float64
	switch strings.ToLower(fields[0]) {
	case "seconds", "second":
		secs = 1
	case "hours", "hour":
		secs = 3600
	case "days", "day":
		secs = 86400
	default:
		return nil, fmt.Errorf("unsupported time unit %q", fields[0])
	}
	epoch, err := domain.ParseTimestamp(strings.Join(fields[2:], " "))
	if err != nil {
		return nil, fmt.Errorf("bad epoch in time units %q: %w", units, err)
	}
	out := make([]time.Time, len(raw))
	for i, v := range raw {
		out[i] = epoch.Add(time.Duration(v * secs * float64(time.Second))).UTC()
	}
	return out, nil
}
