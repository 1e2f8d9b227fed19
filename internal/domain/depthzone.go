package domain

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DepthZone is a canonical vertical stratum of the upper water column.
type DepthZone int

const (
	ZoneSurface      DepthZone = iota // 0-10 m inclusive.
	ZoneSubsurface                    // (10, 50] m.
	ZoneIntermediate                  // (50, 100] m.
	ZoneDeep                          // (100, 200] m.
)

func (z DepthZone) String() string {
	switch z {
	case ZoneSurface:
		return "surface"
	case ZoneSubsurface:
		return "subsurface"
	case ZoneIntermediate:
		return "intermediate"
	case ZoneDeep:
		return "deep"
	default:
		return "unknown"
	}
}

// Zones returns the canonical zone order used everywhere zones are listed.
func Zones() []DepthZone {
	return []DepthZone{ZoneSurface, ZoneSubsurface, ZoneIntermediate, ZoneDeep}
}

// ParseZone maps a zone name back to its DepthZone.
func ParseZone(s string) (DepthZone, bool) {
	switch s {
	case "surface":
		return ZoneSurface, true
	case "subsurface":
		return ZoneSubsurface, true
	case "intermediate":
		return ZoneIntermediate, true
	case "deep":
		return ZoneDeep, true
	default:
		return 0, false
	}
}

// ZoneFor places a depth into its zone. Depths outside 0-200 m (and NaN)
// fall outside the scheme entirely and report false.
func ZoneFor(depthM float64) (DepthZone, bool) {
	switch {
	case math.IsNaN(depthM) || depthM < 0:
		return 0, false
	case depthM <= 10:
		return ZoneSurface, true
	case depthM <= 50:
		return ZoneSubsurface, true
	case depthM <= 100:
		return ZoneIntermediate, true
	case depthM <= 200:
		return ZoneDeep, true
	default:
		return 0, false
	}
}

// DepthSample is one value positioned by depth and tagged with the dataset
// it came from ("observation", "model", ...).
type DepthSample struct {
	DepthM float64
	Value  float64
	Source string
}

// ZoneBin collects the raw values that fell into one (zone, source) cell.
// Values keep their input order and may include NaN; statistics exclude it.
type ZoneBin struct {
	Zone   DepthZone
	Source string
	Values []float64
}

// Bin groups samples by zone and source. Out-of-range depths are dropped.
// Bins come back in canonical zone order, and within a zone in the order
// each source first appeared in the input.
func Bin(samples []DepthSample) []ZoneBin {
	type key struct {
		zone   DepthZone
		source string
	}
	bins := make(map[key]*ZoneBin)
	var sources []string
	seen := make(map[string]bool)

	for _, s := range samples {
		zone, ok := ZoneFor(s.DepthM)
		if !ok {
			continue
		}
		if !seen[s.Source] {
			seen[s.Source] = true
			sources = append(sources, s.Source)
		}
		k := key{zone, s.Source}
		b := bins[k]
		if b == nil {
			b = &ZoneBin{Zone: zone, Source: s.Source}
			bins[k] = b
		}
		b.Values = append(b.Values, s.Value)
	}

	out := make([]ZoneBin, 0, len(bins))
	for _, zone := range Zones() {
		for _, source := range sources {
			if b, ok := bins[key{zone, source}]; ok {
				out = append(out, *b)
			}
		}
	}
	return out
}

// ZoneSummary holds descriptive statistics for one (zone, source) cell.
// Statistics are NaN when N is zero.
type ZoneSummary struct {
	Zone   DepthZone
	Source string
	N      int
	Mean   float64
	StdDev float64 // Population standard deviation; zero when N <= 1.
	Min    float64
	Max    float64
}

// Summarize computes statistics for every (zone, source) pair over the
// sources present in bins, emitting N=0 rows for empty cells so comparison
// tables stay rectangular. NaN values count toward nothing.
func Summarize(bins []ZoneBin) []ZoneSummary {
	type key struct {
		zone   DepthZone
		source string
	}
	byKey := make(map[key][]float64)
	var sources []string
	seen := make(map[string]bool)
	for _, b := range bins {
		if !seen[b.Source] {
			seen[b.Source] = true
			sources = append(sources, b.Source)
		}
		k := key{b.Zone, b.Source}
		byKey[k] = append(byKey[k], b.Values...)
	}

	out := make([]ZoneSummary, 0, len(Zones())*len(sources))
	for _, zone := range Zones() {
		for _, source := range sources {
			vals := byKey[key{zone, source}]
			clean := make([]float64, 0, len(vals))
			for _, v := range vals {
				if !math.IsNaN(v) {
					clean = append(clean, v)
				}
			}
			s := ZoneSummary{Zone: zone, Source: source, N: len(clean)}
			if len(clean) == 0 {
				s.Mean = math.NaN()
				s.StdDev = math.NaN()
				s.Min = math.NaN()
				s.Max = math.NaN()
			} else {
				s.Mean = stat.Mean(clean, nil)
				s.StdDev = stat.PopStdDev(clean, nil)
				s.Min = floats.Min(clean)
				s.Max = floats.Max(clean)
			}
			out = append(out, s)
		}
	}
	return out
}
