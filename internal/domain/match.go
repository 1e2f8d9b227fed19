package domain

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"
)

// MatchMode selects how the tolerance ladder is applied across a batch.
type MatchMode int

const (
	// ModeBestPerRecord walks the full ladder and keeps, for each
	// observation, the tightest level that produced a match. This is the
	// default: quality varies per row and is labeled per row.
	ModeBestPerRecord MatchMode = iota
	// ModeFirstLevel stops at the first level where the batch as a whole
	// produced any match, leaving the rest unmatched at that level. Useful
	// for exploratory runs where a single uniform tolerance is wanted;
	// records that would have matched at looser levels come back as none.
	ModeFirstLevel
)

func (m MatchMode) String() string {
	if m == ModeFirstLevel {
		return "first-level"
	}
	return "best-per-record"
}

// DefaultCardinalityCap flags reference buckets whose size suggests the
// rounded key has collapsed far too many cells onto one observation.
const DefaultCardinalityCap = 50

// MatchResult is one output row of the left join: always one per input
// observation, in input order.
type MatchResult struct {
	Obs          Observation
	MatchedValue float64 // Mean of the matched cells; NaN when Quality is none.
	Quality      Quality
	Level        string // Tolerance label that produced the match; empty when none.
	CellCount    int    // Reference cells aggregated into MatchedValue.
	SeparationKm float64 // Great-circle distance to the matched cell centroid; NaN when none.
}

// LevelStats counts what one ladder rung achieved.
type LevelStats struct {
	Label          string
	Quality        Quality
	Matched        int // Observations newly matched at this level.
	OversizeGroups int // Reference buckets larger than the cardinality cap.
	LargestGroup   int
}

// MatchStats summarizes a matching run.
type MatchStats struct {
	Total      int
	MissingKey int // Records without a usable lat/lon/time key.
	Matched    int
	Unmatched  int // Records with keys that found no counterpart.
	Levels     []LevelStats
	Mode       MatchMode
	Elapsed    time.Duration
}

// MatchRate returns the matched fraction of all input records.
func (s *MatchStats) MatchRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Total)
}

// Matcher joins observations against gridded reference samples by rounded
// coordinate and time keys, walking a tolerance ladder from tight to loose.
// Reference cells sharing a key are aggregated by mean before the join, so
// the output can never have more rows than the input.
type Matcher struct {
	Ladder         Ladder
	Mode           MatchMode
	Convention     LonConvention // Both sides are normalized into this before keying.
	CardinalityCap int           // Zero means DefaultCardinalityCap.
	Logger         *slog.Logger
}

// NewMatcher returns a Matcher with the default ladder and mode.
func NewMatcher() *Matcher {
	return &Matcher{Ladder: DefaultLadder()}
}

func (m *Matcher) log() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Match left-joins obs against ref. Every input observation yields exactly
// one result row in input order; rows with no counterpart carry QualityNone
// and a NaN value. Empty inputs are not errors.
func (m *Matcher) Match(obs []Observation, ref []GridSample) ([]MatchResult, *MatchStats, error) {
	if len(m.Ladder) == 0 {
		return nil, nil, fmt.Errorf("matcher: tolerance ladder is empty")
	}

	start := time.Now()
	stats := &MatchStats{Total: len(obs), Mode: m.Mode}

	// Seed every row as unmatched so the join is total by construction.
	results := make([]MatchResult, len(obs))
	for i, o := range obs {
		results[i] = MatchResult{
			Obs:          o,
			MatchedValue: math.NaN(),
			Quality:      QualityNone,
			SeparationKm: math.NaN(),
		}
		if !o.HasKey() {
			stats.MissingKey++
		}
	}

	capSize := m.CardinalityCap
	if capSize <= 0 {
		capSize = DefaultCardinalityCap
	}

	for _, tol := range m.Ladder {
		ls := LevelStats{Label: tol.Label(), Quality: tol.Quality}

		groups := m.groupRef(ref, tol)
		for _, g := range groups {
			if g.count > ls.LargestGroup {
				ls.LargestGroup = g.count
			}
			if g.count > capSize {
				ls.OversizeGroups++
			}
		}
		if ls.OversizeGroups > 0 {
			m.log().Warn("oversized reference buckets",
				"level", ls.Label,
				"buckets", ls.OversizeGroups,
				"largest", ls.LargestGroup,
				"cap", capSize)
		}

		for i := range results {
			if results[i].Quality != QualityNone {
				continue // Matched at a tighter level.
			}
			o := results[i].Obs
			if !o.HasKey() {
				continue
			}
			g := m.lookup(groups, o, tol)
			if g == nil || g.n == 0 {
				continue
			}
			results[i].MatchedValue = g.sum / float64(g.n)
			results[i].Quality = tol.Quality
			results[i].Level = ls.Label
			results[i].CellCount = g.n
			results[i].SeparationKm = DistanceKm(
				o.Lat, NormalizeLongitude(o.Lon, m.Convention),
				g.latSum/float64(g.n), g.lonSum/float64(g.n))
			ls.Matched++
		}

		stats.Levels = append(stats.Levels, ls)
		m.log().Info("tolerance level complete",
			"level", ls.Label,
			"quality", string(tol.Quality),
			"matched", ls.Matched)

		if m.Mode == ModeFirstLevel && ls.Matched > 0 {
			break
		}
	}

	for _, r := range results {
		if r.Quality != QualityNone {
			stats.Matched++
		}
	}
	stats.Unmatched = stats.Total - stats.Matched - stats.MissingKey
	stats.Elapsed = time.Since(start)

	m.log().Info("matching complete",
		"mode", m.Mode.String(),
		"total", stats.Total,
		"matched", stats.Matched,
		"unmatched", stats.Unmatched,
		"missing_key", stats.MissingKey,
		"match_rate", fmt.Sprintf("%.3f", stats.MatchRate()),
		"elapsed", stats.Elapsed)

	return results, stats, nil
}

// refGroup accumulates one reference bucket. Aggregation happens here,
// before any observation sees the bucket.
type refGroup struct {
	sum    float64 // Sum of non-NaN values.
	latSum float64 // Centroid accumulators over non-NaN cells.
	lonSum float64
	n      int // Non-NaN cells.
	count  int // All cells, for the cardinality guard.
}

func (m *Matcher) groupRef(ref []GridSample, tol Tolerance) map[string]*refGroup {
	groups := make(map[string]*refGroup, len(ref))
	for _, s := range ref {
		if s.Time.IsZero() || math.IsNaN(s.Lat) || math.IsNaN(s.Lon) {
			continue
		}
		lon := NormalizeLongitude(s.Lon, m.Convention)
		_, lonKey := RoundCoord(lon, tol.CoordPlaces)
		_, latKey := RoundCoord(s.Lat, tol.CoordPlaces)
		if lonKey == "" || latKey == "" {
			continue
		}
		key := lonKey + "|" + latKey + "|" + timeKey(s.Time, tol)
		g := groups[key]
		if g == nil {
			g = &refGroup{}
			groups[key] = g
		}
		g.count++
		if !math.IsNaN(s.Value) {
			g.sum += s.Value
			g.latSum += s.Lat
			g.lonSum += lon
			g.n++
		}
	}
	return groups
}

// lookup finds the bucket for an observation. For windowed time rules the
// surrounding day buckets are merged, so a single observation still gets a
// single aggregated value.
func (m *Matcher) lookup(groups map[string]*refGroup, o Observation, tol Tolerance) *refGroup {
	lon := NormalizeLongitude(o.Lon, m.Convention)
	_, lonKey := RoundCoord(lon, tol.CoordPlaces)
	_, latKey := RoundCoord(o.Lat, tol.CoordPlaces)
	if lonKey == "" || latKey == "" {
		return nil
	}
	prefix := lonKey + "|" + latKey + "|"

	if tol.TimeRule != TimeWithinDays {
		return groups[prefix+timeKey(o.Time, tol)]
	}

	window := tol.DayWindow
	if window < 0 {
		window = 0
	}
	day := unixDay(o.Time)
	var merged refGroup
	for d := day - int64(window); d <= day+int64(window); d++ {
		g := groups[prefix+dayKey(d)]
		if g == nil {
			continue
		}
		merged.sum += g.sum
		merged.latSum += g.latSum
		merged.lonSum += g.lonSum
		merged.n += g.n
		merged.count += g.count
	}
	if merged.count == 0 {
		return nil
	}
	return &merged
}

func timeKey(t time.Time, tol Tolerance) string {
	switch tol.TimeRule {
	case TimeSameMonth:
		return t.UTC().Format("2006-01")
	case TimeWithinDays:
		return dayKey(unixDay(t))
	default:
		return t.UTC().Format("2006-01-02")
	}
}

func dayKey(day int64) string {
	return "d" + strconv.FormatInt(day, 10)
}

// unixDay floors toward negative infinity so pre-1970 timestamps still land
// in the right bucket.
func unixDay(t time.Time) int64 {
	sec := t.UTC().Unix()
	day := sec / 86400
	if sec < 0 && sec%86400 != 0 {
		day--
	}
	return day
}
