package domain

import (
	"math"
	"testing"
)

// TestNormalizeLongitude tests conversion between longitude conventions.
func TestNormalizeLongitude(t *testing.T) {
	tests := []struct {
		lon      float64
		conv     LonConvention
		expected float64
	}{
		{242.0, LonSigned, -118.0},
		{-118.0, LonUnsigned, 242.0},
		{-118.0, LonSigned, -118.0},
		{242.0, LonUnsigned, 242.0},
		{180.0, LonSigned, 180.0},
		{180.5, LonSigned, -179.5},
		{0.0, LonSigned, 0.0},
		{0.0, LonUnsigned, 0.0},
		{-0.25, LonUnsigned, 359.75},
	}

	for _, tt := range tests {
		result := NormalizeLongitude(tt.lon, tt.conv)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("NormalizeLongitude(%.2f, %s): expected %.2f, got %.2f",
				tt.lon, tt.conv, tt.expected, result)
		}
	}
}

// TestNormalizeLongitude_Idempotent verifies that applying the conversion
// twice gives the same result as applying it once.
func TestNormalizeLongitude_Idempotent(t *testing.T) {
	values := []float64{-179.9, -118.0, -0.5, 0, 45.25, 180.0, 181.0, 242.0, 359.9}
	for _, v := range values {
		for _, conv := range []LonConvention{LonSigned, LonUnsigned} {
			once := NormalizeLongitude(v, conv)
			twice := NormalizeLongitude(once, conv)
			if once != twice {
				t.Errorf("NormalizeLongitude(%.2f, %s) not idempotent: once %.2f, twice %.2f",
					v, conv, once, twice)
			}
		}
	}
}

// TestRoundCoord tests half-even decimal rounding and key formatting.
func TestRoundCoord(t *testing.T) {
	tests := []struct {
		v           float64
		places      int
		expected    float64
		expectedKey string
	}{
		{33.005, 2, 33.00, "33.00"},    // Tie rounds to even (0).
		{33.015, 2, 33.02, "33.02"},    // Tie rounds to even (2).
		{0.125, 2, 0.12, "0.12"},
		{0.135, 2, 0.14, "0.14"},
		{-118.05, 1, -118.0, "-118.0"}, // Tie rounds to even (0).
		{-118.15, 1, -118.2, "-118.2"},
		{2.5, 0, 2, "2"},
		{3.5, 0, 4, "4"},
		{242.04, 1, 242.0, "242.0"},
		{33.0, 2, 33.0, "33.00"},       // Key keeps fixed width.
		{-0.001, 2, 0, "0.00"},         // No negative-zero key.
	}

	for _, tt := range tests {
		v, key := RoundCoord(tt.v, tt.places)
		if math.Abs(v-tt.expected) > 1e-9 {
			t.Errorf("RoundCoord(%v, %d): expected %v, got %v", tt.v, tt.places, tt.expected, v)
		}
		if key != tt.expectedKey {
			t.Errorf("RoundCoord(%v, %d) key: expected %q, got %q", tt.v, tt.places, tt.expectedKey, key)
		}
	}
}

// TestRoundCoord_NaN verifies that unusable inputs produce no key.
func TestRoundCoord_NaN(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r, key := RoundCoord(v, 2)
		if !math.IsNaN(r) {
			t.Errorf("RoundCoord(%v, 2): expected NaN, got %v", v, r)
		}
		if key != "" {
			t.Errorf("RoundCoord(%v, 2) key: expected empty, got %q", v, key)
		}
	}
}

// TestRoundCoords tests the pair helper.
func TestRoundCoords(t *testing.T) {
	lat, lon := RoundCoords(33.449, -118.051, 1)
	if math.Abs(lat-33.4) > 1e-9 {
		t.Errorf("lat: expected 33.4, got %v", lat)
	}
	if math.Abs(lon-(-118.1)) > 1e-9 {
		t.Errorf("lon: expected -118.1, got %v", lon)
	}
}

// TestDistanceKm tests great-circle distances.
func TestDistanceKm(t *testing.T) {
	// Same point.
	if d := DistanceKm(33.0, -118.0, 33.0, -118.0); d > 1e-9 {
		t.Errorf("Same point: expected 0, got %v", d)
	}

	// Same point expressed in both conventions.
	if d := DistanceKm(33.0, -118.0, 33.0, 242.0); d > 1e-6 {
		t.Errorf("Convention mix: expected 0, got %v", d)
	}

	// One degree of latitude is about 111.2 km.
	d := DistanceKm(0.0, 0.0, 1.0, 0.0)
	if math.Abs(d-111.195) > 0.1 {
		t.Errorf("One degree latitude: expected ~111.195, got %v", d)
	}
}
