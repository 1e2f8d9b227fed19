// Package domain holds the coordinate handling, tolerance matching, and
// depth-zone primitives used to link field observations to gridded model data.
package domain

import (
	"math"
	"time"
)

// Observation is a single field measurement record (bottle, net tow, or CTD
// reading) positioned in space and time.
type Observation struct {
	CruiseID  string
	StationID string
	Lat       float64   // Degrees north. NaN when missing.
	Lon       float64   // Degrees, either convention. NaN when missing.
	Time      time.Time // Zero when missing.
	DepthM    *float64  // Measured depth in meters (optional).
	Method    string    // Sampling gear code (e.g., "CB", "MOC") when depth was not measured.
	Fields    map[string]float64 // Named measurement values (NaN for missing cells).
	Line      int       // Source line number for diagnostics.
}

// HasKey reports whether the observation carries the full spatio-temporal
// key needed for matching. Records without it are unmatchable, which is
// tracked separately from records that simply found no counterpart.
func (o Observation) HasKey() bool {
	return !math.IsNaN(o.Lat) && !math.IsNaN(o.Lon) && !o.Time.IsZero()
}

// GridSample is one cell of a gridded field flattened to a record: a value at
// a (lon, lat, depth, time) coordinate.
type GridSample struct {
	Lon    float64
	Lat    float64
	DepthM float64
	Time   time.Time
	Value  float64 // NaN for masked or fill cells.
}
