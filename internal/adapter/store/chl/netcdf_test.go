package chl

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/bightlab/matchup/internal/adapter/grid"
)

// createProductNC writes a small 4D chlorophyll product: time(2) x depth(2)
// x lat(2) x lon(3), values ti*1000+di*100+yi*10+xi, with a fill cell at
// (0,0,0,1) and a negative cell at (0,0,1,2).
func createProductNC(t *testing.T, path string) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	timeDim, _ := f.AddDim("time", 2)
	depthDim, _ := f.AddDim("depth", 2)
	latDim, _ := f.AddDim("latitude", 2)
	lonDim, _ := f.AddDim("longitude", 3)
	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	vdepth, _ := f.AddVar("depth", netcdf.DOUBLE, []netcdf.Dim{depthDim})
	vlat, _ := f.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vchl, _ := f.AddVar("chlor_a", netcdf.FLOAT, []netcdf.Dim{timeDim, depthDim, latDim, lonDim})
	if err := vchl.Attr("_FillValue").WriteFloat32s([]float32{-999}); err != nil {
		t.Fatalf("write fill attr: %v", err)
	}

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	// Days since 2000-01-01: 2010-06-15 and 2010-07-15.
	if err := vtime.WriteFloat64s([]float64{3818, 3848}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	if err := vdepth.WriteFloat64s([]float64{5, 75}); err != nil {
		t.Fatalf("write depth: %v", err)
	}
	if err := vlat.WriteFloat64s([]float64{33.0, 33.5}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{242.0, 242.5, 243.0}); err != nil {
		t.Fatalf("write lon: %v", err)
	}

	values := make([]float32, 2*2*2*3)
	for ti := 0; ti < 2; ti++ {
		for di := 0; di < 2; di++ {
			for yi := 0; yi < 2; yi++ {
				for xi := 0; xi < 3; xi++ {
					values[((ti*2+di)*2+yi)*3+xi] = float32(ti*1000 + di*100 + yi*10 + xi)
				}
			}
		}
	}
	values[1] = -999 // (0,0,0,1) fill.
	values[5] = -5   // (0,0,1,2) outside the valid range.
	if err := vchl.WriteFloat32s(values); err != nil {
		t.Fatalf("write chl: %v", err)
	}
}

func productConfig() VarConfig {
	cfg := DefaultConfig()
	cfg.TimeUnits = "days since 2000-01-01"
	return cfg
}

// TestExtract_OpenWindow checks that a full extraction keeps every cell
// except fill and out-of-range ones.
func TestExtract_OpenWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chl.nc")
	createProductNC(t, path)

	samples, err := Extract(path, productConfig(), OpenWindow(), &grid.ValidRange{Min: 0, Max: 2000})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(samples) != 22 {
		t.Fatalf("expected 22 samples, got %d", len(samples))
	}

	first := samples[0]
	if first.Lon != 242.0 || first.Lat != 33.0 || first.DepthM != 5 || first.Value != 0 {
		t.Errorf("unexpected first sample: %+v", first)
	}
	want := time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)
	if !first.Time.Equal(want) {
		t.Errorf("expected time %v, got %v", want, first.Time)
	}
	// The fill cell at (0,0,0,1) is skipped, so the second sample is x=2.
	if samples[1].Lon != 243.0 || samples[1].Value != 2 {
		t.Errorf("fill cell not skipped: %+v", samples[1])
	}
}

// TestExtract_Window checks spatial and temporal subsetting with signed
// longitude bounds against an unsigned axis.
func TestExtract_Window(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chl.nc")
	createProductNC(t, path)

	win := Window{
		LonMin: -118.2, LonMax: -117.4,
		LatMin: 32.8, LatMax: 33.2,
		DepthMin: 0, DepthMax: 50,
		TimeMin: time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC),
		TimeMax: time.Date(2010, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	samples, err := Extract(path, productConfig(), win, nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	// (t0, d0, y0) with lons 242.0 and 242.5; 242.5 is the fill cell.
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	s := samples[0]
	if s.Lon != 242.0 || s.Lat != 33.0 || s.DepthM != 5 || s.Value != 0 {
		t.Errorf("unexpected sample: %+v", s)
	}
}

// TestExtract_EmptyWindow checks that a window matching nothing yields no
// samples and no error.
func TestExtract_EmptyWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chl.nc")
	createProductNC(t, path)

	win := OpenWindow()
	win.LatMin, win.LatMax = 40.0, 41.0
	samples, err := Extract(path, productConfig(), win, nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

// TestExtract_SurfaceProduct checks a 3D product without a depth axis.
func TestExtract_SurfaceProduct(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surface.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	timeDim, _ := f.AddDim("time", 1)
	latDim, _ := f.AddDim("latitude", 1)
	lonDim, _ := f.AddDim("longitude", 2)
	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	vlat, _ := f.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vchl, _ := f.AddVar("chlor_a", netcdf.DOUBLE, []netcdf.Dim{timeDim, latDim, lonDim})
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := vtime.WriteFloat64s([]float64{3818}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	if err := vlat.WriteFloat64s([]float64{33.0}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{-118.0, -117.5}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	if err := vchl.WriteFloat64s([]float64{0.4, 0.6}); err != nil {
		t.Fatalf("write chl: %v", err)
	}
	f.Close()

	cfg := productConfig()
	cfg.DepthVar = ""
	samples, err := Extract(path, cfg, OpenWindow(), nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].DepthM != 0 || samples[0].Lon != -118.0 || samples[0].Value != 0.4 {
		t.Errorf("unexpected sample: %+v", samples[0])
	}
}

// TestExtract_PackedProduct checks scale_factor unpacking and that the fill
// comparison happens in unpacked units.
func TestExtract_PackedProduct(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	timeDim, _ := f.AddDim("time", 1)
	latDim, _ := f.AddDim("latitude", 1)
	lonDim, _ := f.AddDim("longitude", 3)
	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	vlat, _ := f.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vchl, _ := f.AddVar("chlor_a", netcdf.SHORT, []netcdf.Dim{timeDim, latDim, lonDim})
	if err := vchl.Attr("scale_factor").WriteFloat64s([]float64{0.001}); err != nil {
		t.Fatalf("write scale attr: %v", err)
	}
	if err := vchl.Attr("_FillValue").WriteFloat64s([]float64{-32768}); err != nil {
		t.Fatalf("write fill attr: %v", err)
	}
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := vtime.WriteFloat64s([]float64{3818}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	if err := vlat.WriteFloat64s([]float64{33.0}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{242.0, 242.5, 243.0}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	if err := vchl.WriteInt16s([]int16{1500, -32768, 2500}); err != nil {
		t.Fatalf("write chl: %v", err)
	}
	f.Close()

	cfg := productConfig()
	cfg.DepthVar = ""
	samples, err := Extract(path, cfg, OpenWindow(), nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if math.Abs(samples[0].Value-1.5) > 1e-9 || math.Abs(samples[1].Value-2.5) > 1e-9 {
		t.Errorf("scale_factor not applied: %v, %v", samples[0].Value, samples[1].Value)
	}
}

// TestExtract_DimensionMismatch checks that a value variable whose shape
// does not follow (time, depth, lat, lon) is rejected.
func TestExtract_DimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	timeDim, _ := f.AddDim("time", 1)
	latDim, _ := f.AddDim("latitude", 2)
	lonDim, _ := f.AddDim("longitude", 3)
	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	vlat, _ := f.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vchl, _ := f.AddVar("chlor_a", netcdf.DOUBLE, []netcdf.Dim{latDim, lonDim})
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := vtime.WriteFloat64s([]float64{3818}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	if err := vlat.WriteFloat64s([]float64{33.0, 33.5}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{242.0, 242.5, 243.0}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	if err := vchl.WriteFloat64s(make([]float64, 6)); err != nil {
		t.Fatalf("write chl: %v", err)
	}
	f.Close()

	cfg := productConfig()
	cfg.DepthVar = ""
	if _, err := Extract(path, cfg, OpenWindow(), nil); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
}

// TestDecodeTimes checks CF-style units strings.
func TestDecodeTimes(t *testing.T) {
	tests := []struct {
		units string
		raw   float64
		want  time.Time
	}{
		{"days since 2000-01-01", 3818, time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"seconds since 1970-01-01 00:00:00", 1276560000, time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"hours since 2010-06-15", 36, time.Date(2010, 6, 16, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := decodeTimes([]float64{tt.raw}, tt.units)
		if err != nil {
			t.Fatalf("decodeTimes(%q) error: %v", tt.units, err)
		}
		if !got[0].Equal(tt.want) {
			t.Errorf("decodeTimes(%q, %v): expected %v, got %v", tt.units, tt.raw, tt.want, got[0])
		}
	}

	if _, err := decodeTimes([]float64{0}, "fortnights since 2000-01-01"); err == nil {
		t.Error("expected error for unknown unit, got nil")
	}
	if _, err := decodeTimes([]float64{0}, "no epoch here"); err == nil {
		t.Error("expected error for malformed units, got nil")
	}
}
