package domain

import (
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"
	"github.com/golang/geo/s2"
)

// LonConvention identifies how longitudes are represented on an axis.
type LonConvention int

const (
	// LonSigned is the -180 to 180 degree representation.
	LonSigned LonConvention = iota
	// LonUnsigned is the 0 to 360 degree representation used by many
	// satellite and model products.
	LonUnsigned
)

func (c LonConvention) String() string {
	if c == LonUnsigned {
		return "unsigned"
	}
	return "signed"
}

// NormalizeLongitude converts a longitude into the target convention.
//
// The conversion is a single conditional shift: signed targets subtract 360
// from values above 180, unsigned targets add 360 to negative values. Values
// already in the target range pass through unchanged, so the function is
// idempotent. Inputs are assumed to lie within one revolution of the valid
// range; callers validate anything wilder.
func NormalizeLongitude(lon float64, c LonConvention) float64 {
	switch c {
	case LonUnsigned:
		if lon < 0 {
			lon += 360.0
		}
	default:
		if lon > 180.0 {
			lon -= 360.0
		}
	}
	return lon
}

var coordCtx *apd.Context

func init() {
	coordCtx = apd.BaseContext.WithPrecision(25)
	coordCtx.Rounding = apd.RoundHalfEven
}

// RoundCoord rounds a coordinate to the given number of decimal places using
// round-half-to-even and returns both the rounded value and its fixed-width
// decimal text. The text form always carries exactly places fraction digits,
// so it can be compared for equality as a join key without float drift.
// NaN and infinite inputs return NaN and an empty key.
func RoundCoord(v float64, places int) (float64, string) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), ""
	}

	// Round the shortest decimal representation rather than the full binary
	// expansion, so 33.005 ties resolve the way they read in the source data.
	var d apd.Decimal
	if _, _, err := d.SetString(strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
		return math.NaN(), ""
	}

	var q apd.Decimal
	if _, err := coordCtx.Quantize(&q, &d, int32(-places)); err != nil {
		return math.NaN(), ""
	}

	// Avoid a distinct "-0.00" key.
	if q.Negative && q.IsZero() {
		q.Negative = false
	}

	f, err := q.Float64()
	if err != nil {
		return math.NaN(), ""
	}
	return f, q.Text('f')
}

// RoundCoords rounds a lat/lon pair to the same precision.
func RoundCoords(lat, lon float64, places int) (float64, float64) {
	rlat, _ := RoundCoord(lat, places)
	rlon, _ := RoundCoord(lon, places)
	return rlat, rlon
}

// Mean Earth radius in kilometers (IUGG).
const earthRadiusKm = 6371.0088

// DistanceKm returns the great-circle distance in kilometers between two
// points given in degrees. Longitudes may use either convention.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, NormalizeLongitude(lon1, LonSigned))
	p2 := s2.LatLngFromDegrees(lat2, NormalizeLongitude(lon2, LonSigned))
	return p1.Distance(p2).Radians() * earthRadiusKm
}
