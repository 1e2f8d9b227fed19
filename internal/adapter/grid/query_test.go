package grid

import (
	"math"
	"testing"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

func collect(c *Cursor) []domain.GridSample {
	var out []domain.GridSample
	for c.Next() {
		out = append(out, c.Sample())
	}
	return out
}

// TestQuery_Window tests spatial, depth, and time windowing together.
func TestQuery_Window(t *testing.T) {
	f := monthlyField(t, 3)

	got := collect(f.Query(Bounds{
		LonMin: 241.8, LonMax: 242.2, // Only 242.0.
		LatMin: 33.2, LatMax: 33.9, // Only 33.5.
		DepthMin: 0, DepthMax: 50, // Only 5 m.
		Times: []time.Time{time.Date(2008, 2, 1, 0, 0, 0, 0, time.UTC)},
	}))

	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	s := got[0]
	if s.Lon != 242.0 || s.Lat != 33.5 || s.DepthM != 5 {
		t.Errorf("unexpected cell: lon=%v lat=%v depth=%v", s.Lon, s.Lat, s.DepthM)
	}
	if s.Value != 1010 {
		t.Errorf("value: expected 1010, got %v", s.Value)
	}
}

// TestQuery_Order verifies deterministic time, depth, lat, lon traversal.
func TestQuery_Order(t *testing.T) {
	f := monthlyField(t, 2)

	got := collect(f.Query(Bounds{
		LonMin: 0, LonMax: 360,
		LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200,
		Times:    f.Times,
	}))

	if len(got) != 16 {
		t.Fatalf("expected 16 samples, got %d", len(got))
	}
	expected := []float64{
		0, 1, 10, 11, 100, 101, 110, 111,
		1000, 1001, 1010, 1011, 1100, 1101, 1110, 1111,
	}
	for i, s := range got {
		if s.Value != expected[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, expected[i], s.Value)
		}
	}
}

// TestQuery_SkipsMissingAndMasked verifies NaN cells and out-of-valid-range
// cells never surface.
func TestQuery_SkipsMissingAndMasked(t *testing.T) {
	jan := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	f, err := New([]float64{242.0, 242.5}, []float64{33.0}, []float64{5},
		[]time.Time{jan}, domain.LonUnsigned)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Valid = &ValidRange{Min: 0, Max: 100}
	f.Set(-3.0, 0, 0, 0, 0) // Out of valid range.
	// Cell (0,0,0,1) left missing.

	got := collect(f.Query(Bounds{
		LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200, Times: []time.Time{jan},
	}))
	if len(got) != 0 {
		t.Fatalf("expected no samples, got %d", len(got))
	}

	f.Set(42.0, 0, 0, 0, 1)
	got = collect(f.Query(Bounds{
		LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200, Times: []time.Time{jan},
	}))
	if len(got) != 1 || got[0].Value != 42.0 {
		t.Fatalf("expected the one valid sample, got %v", got)
	}
}

// TestQuery_EmptyWindows tests the defined-empty query shapes.
func TestQuery_EmptyWindows(t *testing.T) {
	f := monthlyField(t, 2)

	// Inverted depth bounds.
	if c := f.Query(Bounds{LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90,
		DepthMin: 100, DepthMax: 50, Times: f.Times}); c.Next() {
		t.Errorf("inverted depth bounds: expected empty cursor")
	}

	// Empty time set.
	if c := f.Query(Bounds{LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200}); c.Next() {
		t.Errorf("empty time set: expected empty cursor")
	}

	// Times off the axis.
	if c := f.Query(Bounds{LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200,
		Times: []time.Time{time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)}}); c.Next() {
		t.Errorf("off-axis time: expected empty cursor")
	}

	// Disjoint spatial window.
	if c := f.Query(Bounds{LonMin: 10, LonMax: 20, LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200, Times: f.Times}); c.Next() {
		t.Errorf("disjoint lon window: expected empty cursor")
	}
}

// TestQuery_SignedBoundsOnUnsignedAxis verifies bounds are converted into
// the field's convention before lookup.
func TestQuery_SignedBoundsOnUnsignedAxis(t *testing.T) {
	f := monthlyField(t, 1) // Lons 242.0, 242.5 on a 0-360 axis.

	got := collect(f.Query(Bounds{
		LonMin: -118.2, LonMax: -117.9, // 241.8 to 242.1 unsigned.
		LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200,
		Times:    f.Times,
	}))

	if len(got) != 4 {
		t.Fatalf("expected 4 samples (one lon column), got %d", len(got))
	}
	for _, s := range got {
		if s.Lon != 242.0 {
			t.Errorf("expected lon 242.0, got %v", s.Lon)
		}
	}
}

// TestQuery_WrapWindow tests a window straddling the longitude seam.
func TestQuery_WrapWindow(t *testing.T) {
	jan := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	f, err := New([]float64{0.5, 10.5, 350.5, 359.5}, []float64{33.0}, []float64{5},
		[]time.Time{jan}, domain.LonUnsigned)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for xi := range f.Lons {
		f.Set(float64(xi), 0, 0, 0, xi)
	}

	// -10..11 signed covers 350..360 and 0..11 on this axis.
	got := collect(f.Query(Bounds{
		LonMin: -10, LonMax: 11,
		LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200,
		Times:    []time.Time{jan},
	}))
	if len(got) != 4 {
		t.Fatalf("expected all 4 columns, got %d", len(got))
	}
	// Axis-order traversal: low end first, then the high end.
	for i, want := range []float64{0, 1, 2, 3} {
		if got[i].Value != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got[i].Value)
		}
	}

	// A narrower wrap keeps only the matching ends.
	got = collect(f.Query(Bounds{
		LonMin: -10, LonMax: 5,
		LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200,
		Times:    []time.Time{jan},
	}))
	if len(got) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(got))
	}
}

// TestQuery_Restartable verifies a query can be walked again by re-issuing
// it, and that an exhausted cursor stays exhausted.
func TestQuery_Restartable(t *testing.T) {
	f := monthlyField(t, 2)
	b := Bounds{LonMin: 0, LonMax: 360, LatMin: -90, LatMax: 90,
		DepthMin: 0, DepthMax: 200, Times: f.Times}

	first := collect(f.Query(b))
	second := collect(f.Query(b))
	if len(first) != len(second) {
		t.Fatalf("restart: expected %d samples, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("restart: sample %d differs: %v vs %v", i, first[i], second[i])
		}
	}

	c := f.Query(b)
	for c.Next() {
	}
	if c.Next() || c.Next() {
		t.Errorf("exhausted cursor: expected Next to stay false")
	}
}

// TestQuery_NaNBoundsMatchNothing verifies malformed windows select nothing
// rather than everything.
func TestQuery_NaNBoundsMatchNothing(t *testing.T) {
	f := monthlyField(t, 1)
	if c := f.Query(Bounds{LonMin: math.NaN(), LonMax: math.NaN(),
		LatMin: -90, LatMax: 90, DepthMin: 0, DepthMax: 200, Times: f.Times}); c.Next() {
		t.Errorf("NaN lon bounds: expected empty cursor")
	}
}
