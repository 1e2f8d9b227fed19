// Package result persists the pipeline's output tables: the per-observation
// match table and the depth-zone comparison summary. Missing numeric cells
// are written as NA so the tables load cleanly in analysis tools.
package result

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/bightlab/matchup/internal/domain"
)

// matchColumns are the fixed columns of the match table. The observed value
// column sits between time and matched_value and carries the source field's
// own name.
var (
	matchColumnsHead = []string{"cruise", "station", "latitude", "longitude", "depth_m", "method", "time"}
	matchColumnsTail = []string{"matched_value", "match_cells", "separation_km", "match_tolerance_level", "match_quality"}
)

const obsValueCol = 7

// WriteMatches writes one row per match result, in result order. valueField
// names the observation measurement carried into the table (and its column).
func WriteMatches(path string, results []domain.MatchResult, valueField string) error {
	if valueField == "" {
		return errors.New("valueField must name the observed measurement column")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)

	header := append(append([]string{}, matchColumnsHead...), valueField)
	header = append(header, matchColumnsTail...)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}

	for _, r := range results {
		o := r.Obs
		observed := math.NaN()
		if o.Fields != nil {
			if v, ok := o.Fields[valueField]; ok {
				observed = v
			}
		}
		row := []string{
			o.CruiseID,
			o.StationID,
			formatNA(o.Lat),
			formatNA(o.Lon),
			formatDepth(o.DepthM),
			o.Method,
			formatTime(o.Time),
			formatNA(observed),
			formatNA(r.MatchedValue),
			strconv.Itoa(r.CellCount),
			formatNA(r.SeparationKm),
			r.Level,
			string(r.Quality),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadMatches loads a match table. It returns the results and the name of
// the observed value column.
func ReadMatches(path string) ([]domain.MatchResult, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	want := len(matchColumnsHead) + 1 + len(matchColumnsTail)
	if len(header) != want {
		return nil, "", fmt.Errorf("invalid match table header: %v", header)
	}
	for i, name := range matchColumnsHead {
		if header[i] != name {
			return nil, "", fmt.Errorf("invalid match table header: expected %q at column %d, got %q", name, i, header[i])
		}
	}
	for i, name := range matchColumnsTail {
		if header[obsValueCol+1+i] != name {
			return nil, "", fmt.Errorf("invalid match table header: expected %q at column %d, got %q", name, obsValueCol+1+i, header[obsValueCol+1+i])
		}
	}
	valueField := header[obsValueCol]

	var out []domain.MatchResult
	line := 1
	for {
		record, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		line++

		r, err := parseMatchRow(record, valueField, line)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	return out, valueField, nil
}

func parseMatchRow(record []string, valueField string, line int) (domain.MatchResult, error) {
	var r domain.MatchResult
	o := domain.Observation{
		CruiseID:  record[0],
		StationID: record[1],
		Method:    record[5],
		Line:      line,
	}

	var err error
	if o.Lat, err = parseNA(record[2]); err != nil {
		return r, fmt.Errorf("line %d: bad latitude %q: %w", line, record[2], err)
	}
	if o.Lon, err = parseNA(record[3]); err != nil {
		return r, fmt.Errorf("line %d: bad longitude %q: %w", line, record[3], err)
	}
	depth, err := parseNA(record[4])
	if err != nil {
		return r, fmt.Errorf("line %d: bad depth %q: %w", line, record[4], err)
	}
	if !math.IsNaN(depth) {
		o.DepthM = &depth
	}
	if record[6] != "" {
		t, err := time.Parse(time.RFC3339, record[6])
		if err != nil {
			return r, fmt.Errorf("line %d: bad time %q: %w", line, record[6], err)
		}
		o.Time = t.UTC()
	}
	observed, err := parseNA(record[obsValueCol])
	if err != nil {
		return r, fmt.Errorf("line %d: bad %s %q: %w", line, valueField, record[obsValueCol], err)
	}
	o.Fields = map[string]float64{valueField: observed}

	r.Obs = o
	if r.MatchedValue, err = parseNA(record[8]); err != nil {
		return r, fmt.Errorf("line %d: bad matched_value %q: %w", line, record[8], err)
	}
	if r.CellCount, err = strconv.Atoi(record[9]); err != nil {
		return r, fmt.Errorf("line %d: bad match_cells %q: %w", line, record[9], err)
	}
	if r.SeparationKm, err = parseNA(record[10]); err != nil {
		return r, fmt.Errorf("line %d: bad separation_km %q: %w", line, record[10], err)
	}
	r.Level = record[11]
	r.Quality = domain.Quality(record[12])
	return r, nil
}

var zoneHeader = []string{"zone", "data_source", "n", "mean", "stddev", "min", "max"}

// WriteZoneSummaries writes the depth-zone comparison table.
func WriteZoneSummaries(path string, summaries []domain.ZoneSummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(zoneHeader); err != nil {
		f.Close()
		return err
	}
	for _, s := range summaries {
		row := []string{
			s.Zone.String(),
			s.Source,
			strconv.Itoa(s.N),
			formatNA(s.Mean),
			formatNA(s.StdDev),
			formatNA(s.Min),
			formatNA(s.Max),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadZoneSummaries loads a depth-zone comparison table.
func ReadZoneSummaries(path string) ([]domain.ZoneSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) != len(zoneHeader) {
		return nil, fmt.Errorf("invalid zone table header: %v", header)
	}
	for i, name := range zoneHeader {
		if header[i] != name {
			return nil, fmt.Errorf("invalid zone table header: expected %q at column %d, got %q", name, i, header[i])
		}
	}

	var out []domain.ZoneSummary
	line := 1
	for {
		record, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		line++

		zone, ok := domain.ParseZone(record[0])
		if !ok {
			return nil, fmt.Errorf("line %d: unknown zone %q", line, record[0])
		}
		s := domain.ZoneSummary{Zone: zone, Source: record[1]}
		if s.N, err = strconv.Atoi(record[2]); err != nil {
			return nil, fmt.Errorf("line %d: bad n %q: %w", line, record[2], err)
		}
		if s.Mean, err = parseNA(record[3]); err != nil {
			return nil, fmt.Errorf("line %d: bad mean %q: %w", line, record[3], err)
		}
		if s.StdDev, err = parseNA(record[4]); err != nil {
			return nil, fmt.Errorf("line %d: bad stddev %q: %w", line, record[4], err)
		}
		if s.Min, err = parseNA(record[5]); err != nil {
			return nil, fmt.Errorf("line %d: bad min %q: %w", line, record[5], err)
		}
		if s.Max, err = parseNA(record[6]); err != nil {
			return nil, fmt.Errorf("line %d: bad max %q: %w", line, record[6], err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatNA renders a float, with NaN as NA.
func formatNA(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatDepth(d *float64) string {
	if d == nil {
		return "NA"
	}
	return formatNA(*d)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseNA parses a float cell, with NA and empty meaning missing.
func parseNA(s string) (float64, error) {
	if s == "" || s == "NA" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
