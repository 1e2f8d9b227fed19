package domain

import "strings"

// DepthLookup maps sampling gear codes to nominal tow depths in meters.
type DepthLookup map[string]float64

// FallbackTowDepthM is assigned when a gear code is unrecognized, keeping
// the lookup total so depth joins never drop records.
const FallbackTowDepthM = 10.0

// DefaultTowDepths returns the standard gear-to-depth table: manta trawls
// skim the surface, bongo and vertical nets sample the upper mixed layer,
// and MOCNESS tows reach the deep strata.
func DefaultTowDepths() DepthLookup {
	return DepthLookup{
		"MT":  1,
		"CB":  35,
		"CV":  70,
		"MOC": 150,
	}
}

// RepresentativeDepth returns the nominal depth for a gear code and whether
// the code was recognized. Unknown or empty codes get FallbackTowDepthM.
func (l DepthLookup) RepresentativeDepth(code string) (float64, bool) {
	if d, ok := l[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return d, true
	}
	return FallbackTowDepthM, false
}
